package httpapi

// Config holds control API settings.
type Config struct {
	// SocketPath is the unix socket the API listens on. Peers whose uid
	// differs from the daemon's are refused at accept time.
	SocketPath string
	// Addr is an optional TCP listener for the API and the live view.
	// Disabled when empty. The TCP listener performs no peer checks, so
	// bind it to loopback or put a proxy in front.
	Addr string
	// BasePath mounts the API under a path prefix when the TCP listener
	// sits behind a reverse proxy. The live view uses relative URLs, so no
	// further rewriting is needed.
	BasePath string
}
