// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the session socket.
const (
	BadSubprotocolError   = 3000 // Client connected without the "game" subprotocol.
	InvalidAuthTokenError = 3001 // Auth token expired while the socket was open.
	NotSeatedError        = 3002 // Player has no seat in the session.
	SessionGoneError      = 3003 // Session finished or was removed.
)
