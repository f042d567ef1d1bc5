// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Dial opens a websocket to url and starts its write pump. A refused
// upgrade is reported with the HTTP status and the start of the body,
// which is where the relay explains a parameter error.
func Dial(ctx context.Context, url string, config Config) (*Conn, error) {
	conn, response, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if response != nil {
			defer response.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
			return nil, fmt.Errorf("dialing %s: %s: %s", url, http.StatusText(response.StatusCode), strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return New(conn, config), nil
}

// CloseCode extracts the close code from an error returned by
// [Conn.Run]. It returns 0 when the connection ended without a close
// frame.
func CloseCode(err error) int {
	var closeError *websocket.CloseError
	if errors.As(err, &closeError) {
		return closeError.Code
	}
	return 0
}

// CloseReason is the close text of an error returned by [Conn.Run].
func CloseReason(err error) string {
	var closeError *websocket.CloseError
	if errors.As(err, &closeError) {
		return closeError.Text
	}
	return ""
}
