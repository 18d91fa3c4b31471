// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package location defines the location sample model and the platform
// location service the acquisition channels are built on.
package location

import (
	"time"

	"github.com/golang/geo/s2"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distance.
const earthRadiusMeters = 6371000.0

// Sample is a single location observation. Immutable once created.
type Sample struct {
	// Latitude and Longitude in decimal degrees.
	Latitude  float64
	Longitude float64

	// Accuracy in meters, smaller is better. Nil when the fix has none.
	Accuracy *float64

	// Altitude in meters. Nil when the fix has none.
	Altitude *float64

	// CapturedAt is when the fix was taken.
	CapturedAt time.Time

	// UserEmail identifies the owning user on the backend.
	UserEmail string

	// Source names the acquisition channel that produced the sample.
	Source string
}

// Position is a raw fix from the platform location service, before it is
// stamped with a user and source.
type Position struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	Altitude   *float64
	CapturedAt time.Time
}

// SampleFrom stamps a platform fix into a Sample owned by email.
func SampleFrom(pos Position, email, source string) Sample {
	return Sample{
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Accuracy:   pos.Accuracy,
		Altitude:   pos.Altitude,
		CapturedAt: pos.CapturedAt,
		UserEmail:  email,
		Source:     source,
	}
}

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}
