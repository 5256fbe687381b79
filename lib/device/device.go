// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package device attaches a description of the device, operating
// system, and application to every log. The description is collected
// once per process and cached; Invalidate forces a fresh snapshot, for
// example after the host application changes its locale.
package device

import (
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/bureau-foundation/logship/lib/channel"
	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/version"
)

// Config describes the host application. Everything except the
// application fields is discovered from the running system.
type Config struct {
	AppVersion   string
	AppBuild     string
	AppNamespace string

	// WrapperSDKName and WrapperSDKVersion identify a framework
	// wrapping this library, if any.
	WrapperSDKName    string
	WrapperSDKVersion string

	// Locale overrides the locale read from LC_ALL / LC_MESSAGES /
	// LANG.
	Locale string

	// Clock supplies the time zone offset. Nil means clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Stamper is a channel listener that attaches a cached Device to logs
// arriving without one.
type Stamper struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger

	// system is replaced in tests.
	system func() systemInfo

	mu     sync.Mutex
	cached *ingest.Device
}

var _ channel.Listener = (*Stamper)(nil)

// NewStamper returns a Stamper for the application described by
// config.
func NewStamper(config Config) *Stamper {
	s := &Stamper{config: config, clock: config.Clock, logger: config.Logger, system: readSystemInfo}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// EnqueuingLog attaches a copy of the current Device when log has
// none.
func (s *Stamper) EnqueuingLog(_ channel.Enqueuer, log ingest.Log, _ string) {
	envelope := log.Common()
	if envelope.Device != nil {
		return
	}
	device := s.Device()
	envelope.Device = &device
}

// Device returns the cached description, collecting it if needed.
func (s *Stamper) Device() ingest.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		device := s.collectLocked()
		s.cached = &device
		s.logger.Debug("collected device info",
			"os_name", device.OSName,
			"os_version", device.OSVersion,
			"model", device.Model,
		)
	}
	return *s.cached
}

// Invalidate drops the cached description. The next log triggers a
// fresh collection.
func (s *Stamper) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Stamper) collectLocked() ingest.Device {
	info := s.system()
	_, offsetSeconds := s.clock.Now().Zone()

	locale := s.config.Locale
	if locale == "" {
		locale = localeFromEnv(os.Getenv)
	}

	return ingest.Device{
		SDKName:           version.SDKName,
		SDKVersion:        version.Short(),
		WrapperSDKName:    s.config.WrapperSDKName,
		WrapperSDKVersion: s.config.WrapperSDKVersion,
		Model:             info.machine,
		OEMName:           info.hostname,
		OSName:            osName(runtime.GOOS),
		OSVersion:         info.release,
		OSBuild:           info.build,
		Locale:            locale,
		TimeZoneOffset:    offsetSeconds / 60,
		AppVersion:        s.config.AppVersion,
		AppBuild:          s.config.AppBuild,
		AppNamespace:      s.config.AppNamespace,
	}
}

// systemInfo is what the kernel reports about itself.
type systemInfo struct {
	release  string
	build    string
	machine  string
	hostname string
}

// osName maps GOOS to the display name the ingestion service expects.
func osName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "netbsd":
		return "NetBSD"
	default:
		return goos
	}
}

// localeFromEnv follows POSIX precedence and strips the codeset and
// modifier: "en_US.UTF-8@euro" becomes "en_US". "C" and "POSIX" are
// not locales a user chose and yield "".
func localeFromEnv(getenv func(string) string) string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		value := getenv(name)
		if value == "" {
			continue
		}
		if i := strings.IndexAny(value, ".@"); i >= 0 {
			value = value[:i]
		}
		if value == "C" || value == "POSIX" {
			return ""
		}
		return value
	}
	return ""
}
