package server

import "errors"

// Server lifecycle failure (socket setup, PID file, shutdown).
var ErrServer = errors.New("server error")
