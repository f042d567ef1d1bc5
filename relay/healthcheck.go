// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "time"

// startHealthCheck arms the first stage for key, replacing any check
// already running for it.
func (router *Router) startHealthCheck(key PendingKey) {
	router.scheduleCheck(key, router.syncDelay, router.nudgeControl)
}

func (router *Router) stopHealthCheck(key PendingKey) {
	router.mu.Lock()
	defer router.mu.Unlock()
	if check := router.checks[key]; check != nil {
		check.timer.Stop()
		delete(router.checks, key)
	}
}

func (router *Router) scheduleCheck(key PendingKey, delay time.Duration, stage func(PendingKey)) {
	router.mu.Lock()
	defer router.mu.Unlock()
	if previous := router.checks[key]; previous != nil {
		previous.timer.Stop()
	}
	router.nextID++
	check := &healthCheck{id: router.nextID}
	router.checks[key] = check
	// The callback claims the check under mu, so it never sees the
	// entry before timer is set. delay is always positive here.
	check.timer = router.clock.AfterFunc(delay, func() {
		if router.claimCheck(key, check.id) {
			stage(key)
		}
	})
}

// claimCheck removes the check for key if it is still the one
// identified by id. A timer that fires after being stopped or replaced
// loses the claim.
func (router *Router) claimCheck(key PendingKey, id uint64) bool {
	router.mu.Lock()
	defer router.mu.Unlock()
	check := router.checks[key]
	if check == nil || check.id != id {
		return false
	}
	delete(router.checks, key)
	return true
}

// stalled reports whether key's client is still connected without a
// data socket.
func stalled(session *Session, key PendingKey) bool {
	return len(session.Clients(key.ClientID)) > 0 && len(session.Data(key.ClientID)) == 0
}

// nudgeControl is the first stage: ask the daemon to resync its data
// sockets.
func (router *Router) nudgeControl(key PendingKey) {
	unlock := router.lockSession(key.ServerID)
	defer unlock()

	session := router.registry.Session(key.ServerID)
	if !stalled(session, key) || len(session.Controls()) == 0 {
		return
	}
	router.logger.Info("data socket missing, nudging control",
		"server_id", key.ServerID, "client_id", key.ClientID)
	router.sendControlLocked(key.ServerID, ControlMessage{Type: ControlSync, ClientIDs: session.ClientIDs()})
	router.scheduleCheck(key, router.closeDelay, router.closeUnresponsiveControl)
}

// closeUnresponsiveControl is the second stage: the daemon ignored the
// nudge, so its control socket is closed to force a reconnect.
func (router *Router) closeUnresponsiveControl(key PendingKey) {
	unlock := router.lockSession(key.ServerID)
	defer unlock()

	session := router.registry.Session(key.ServerID)
	if !stalled(session, key) {
		return
	}
	for _, control := range session.Controls() {
		router.logger.Warn("control unresponsive, closing",
			"server_id", key.ServerID, "client_id", key.ClientID)
		router.closeLocked(control, CloseInternalError, ReasonControlUnresponsive)
	}
}
