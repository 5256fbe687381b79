// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Log is one telemetry record. Implementations are pointer types that
// embed Envelope.
type Log interface {
	// Type returns the wire type tag. It must be constant for a given
	// concrete type and match the tag the type is registered under.
	Type() string

	// Common returns the record's shared fields for in-place
	// mutation by channel listeners.
	Common() *Envelope
}

// Envelope holds the fields every record carries.
type Envelope struct {
	// Timestamp is the absolute time the record was created. The
	// channel stamps the enqueue time when a producer leaves it zero;
	// producers that set it explicitly are reporting a past event and
	// are correlated with the session active at that time.
	Timestamp time.Time `json:"timestamp"`

	// Toffset is the age of the record in milliseconds at the moment
	// its request body was built. MarshalContainerAt writes it into the
	// wire form only; it stays zero on the record itself.
	Toffset int64 `json:"toffset,omitempty"`

	// SessionID links the record to a usage session. Nil until the
	// session tracker stamps it.
	SessionID *uuid.UUID `json:"sid,omitempty"`

	// UserID is an optional application-defined user identifier.
	UserID string `json:"userId,omitempty"`

	// Device is a snapshot of the device and runtime the record was
	// produced on. Attached by the device stamper when absent.
	Device *Device `json:"device,omitempty"`
}

// Common returns e. Embedding types inherit it, which is how they
// satisfy half of Log.
func (e *Envelope) Common() *Envelope { return e }

// Device describes the device, operating system, and application
// that produced a record.
type Device struct {
	SDKName           string `json:"sdkName"`
	SDKVersion        string `json:"sdkVersion"`
	WrapperSDKName    string `json:"wrapperSdkName,omitempty"`
	WrapperSDKVersion string `json:"wrapperSdkVersion,omitempty"`
	Model             string `json:"model,omitempty"`
	OEMName           string `json:"oemName,omitempty"`
	OSName            string `json:"osName"`
	OSVersion         string `json:"osVersion"`
	OSBuild           string `json:"osBuild,omitempty"`
	OSAPILevel        int    `json:"osApiLevel,omitempty"`
	Locale            string `json:"locale,omitempty"`
	// TimeZoneOffset is minutes east of UTC.
	TimeZoneOffset int    `json:"timeZoneOffset"`
	ScreenSize     string `json:"screenSize,omitempty"`
	AppVersion     string `json:"appVersion"`
	AppBuild       string `json:"appBuild,omitempty"`
	AppNamespace   string `json:"appNamespace,omitempty"`
	CarrierName    string `json:"carrierName,omitempty"`
	CarrierCountry string `json:"carrierCountry,omitempty"`
}
