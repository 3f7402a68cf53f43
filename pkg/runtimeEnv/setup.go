// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimeEnv covers the process environment chores of a long-running
// daemon: .env loading and systemd readiness notification.
package runtimeEnv

import (
	"fmt"
	"net"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file into the process environment. A missing file is
// reported through the returned error; callers typically ignore that case.
func LoadEnv(file string) error {
	return godotenv.Load(file)
}

// SystemdNotify informs systemd about the service state when the process was
// started under it:
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotify(ready bool, status string) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		// Not started using systemd.
		return
	}

	conn, err := net.Dial("unixgram", socket)
	if err != nil {
		return
	}
	defer conn.Close()

	msg := ""
	if ready {
		msg = "READY=1\n"
	}
	if status != "" {
		msg += fmt.Sprintf("STATUS=%s\n", status)
	}
	conn.Write([]byte(msg))
}
