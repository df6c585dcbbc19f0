// Copyright 2023 The OpenSlate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signal converts process termination signals into something a
// run loop can wait on.
package signal

import (
	"os"
	"os/signal"
	"syscall"
)

// New returns a pair of functions around SIGINT/SIGTERM delivery.
// waitForFunc blocks until the process is signalled; terminateFunc makes
// waitForFunc return immediately, so owners can stop the loop
// programmatically too.
func New() (waitForFunc func(), terminateFunc func()) {
	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)
	waitForFunc = func() {
		<-terminate
	}
	terminateFunc = func() {
		terminate <- syscall.SIGTERM
		close(terminate)
	}
	return waitForFunc, terminateFunc
}
