package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

func NewSocketAcceptor(sessionHolder *SessionHolder, registry *RoomRegistry, config *Config, pipeline *Pipeline, stats *Stats, logger *Logger) func(http.ResponseWriter, *http.Request) {
	upgrader := &websocket.Upgrader{
		ReadBufferSize: 4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {

		//Connections made to this endpoint will be upgraded to websocket connections if the token is valid.
		//A connection that fails verification is terminated here, with no room side effects.
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Invalid token", 401)
			return
		}

		identity, ok := parseToken([]byte(config.AuthConfig.JWTSecret), token)
		if !ok {
			http.Error(w, "Invalid token", 401)
			return
		}

		clientAddr := ""
		clientIP := ""
		clientPort := ""
		if ips := r.Header.Get("x-forwarded-for"); len(ips) > 0 {
			clientAddr = strings.Split(ips, ",")[0]
		} else {
			clientAddr = r.RemoteAddr
		}

		clientAddr = strings.TrimSpace(clientAddr)
		if host, port, err := net.SplitHostPort(clientAddr); err == nil {
			clientIP = host
			clientPort = port
		} else if addrErr, ok := err.(*net.AddrError); ok && addrErr.Err == "missing port in address" {
			clientIP = clientAddr
		} else {
			logger.Warnw("Could not extract client address from request.", "error", errors.WithStack(err))
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorw("Websocket upgrade was failed", "error", errors.WithStack(err))
			return
		}

		s := NewSession(*identity, int64(config.AuthConfig.TokenExpireTime), clientIP, clientPort, conn, config, sessionHolder, registry, stats, logger)

		logger.Infow("New socket connection was established", "id", s.ID().String(), "userID", s.UserID())

		sessionHolder.add(s)

		//Incoming requests are consumed on the session read loop and passed to the pipeline for the logic part of each request
		s.Consume(pipeline.handleSocketRequests)

	}
}
