package tracker

import (
	"time"

	"github.com/oshokin/bus-tracker/internal/geocoding"
	"github.com/oshokin/bus-tracker/internal/notifier"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/repository/location"
)

// Defaults applied to zero Options fields.
const (
	DefaultRadiusMeters            = 800.0
	DefaultRepublishInterval       = 30 * time.Second
	DefaultStopWait                = 2 * time.Second
	DefaultWriteQueueSize          = 256
	DefaultStoreAttempts           = 3
	DefaultStoreBackoff            = 200 * time.Millisecond
	DefaultStoreTimeout            = 5 * time.Second
	DefaultNotifyAttempts          = 3
	DefaultNotifyBackoff           = 500 * time.Millisecond
	DefaultNotifyTimeout           = 5 * time.Second
	DefaultGeocodeTimeout          = 2 * time.Second
	DefaultEmergencyFixTimeout     = 5 * time.Second
	DefaultEmergencyMaxFixAge      = 30 * time.Second
	DefaultEmergencyNotifyAttempts = 5
)

// Options tunes the engine. Zero values take the defaults above.
type Options struct {
	// DefaultRadiusMeters is used when a session starts without a radius.
	DefaultRadiusMeters float64
	// MinInterval is passed to every position subscription.
	MinInterval time.Duration
	// RepublishInterval is the period of the last-fix republish ticker.
	// Negative disables the ticker.
	RepublishInterval time.Duration
	// StopWait bounds how long StopSession waits for queued store writes.
	StopWait time.Duration
	// CompletedRetention is how long completed sessions stay queryable. Zero keeps them.
	CompletedRetention time.Duration
	// WriteQueueSize is the capacity of each session's store write queue.
	WriteQueueSize int
	// StoreAttempts, StoreBackoff and StoreTimeout shape every store write.
	StoreAttempts int
	StoreBackoff  time.Duration
	StoreTimeout  time.Duration
	// NotifyAttempts, NotifyBackoff and NotifyTimeout shape approaching-alert delivery.
	NotifyAttempts int
	NotifyBackoff  time.Duration
	NotifyTimeout  time.Duration
	// GeocodeTimeout bounds address lookups for alert metadata.
	GeocodeTimeout time.Duration
	// EmergencyFixTimeout and EmergencyMaxFixAge are passed to GetOnce.
	EmergencyFixTimeout time.Duration
	EmergencyMaxFixAge  time.Duration
	// EmergencyNotifyAttempts is the delivery budget of an emergency.
	EmergencyNotifyAttempts int
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (o Options) withDefaults() Options {
	setFloat(&o.DefaultRadiusMeters, DefaultRadiusMeters)
	setDuration(&o.RepublishInterval, DefaultRepublishInterval)
	setDuration(&o.StopWait, DefaultStopWait)
	setInt(&o.WriteQueueSize, DefaultWriteQueueSize)
	setInt(&o.StoreAttempts, DefaultStoreAttempts)
	setDuration(&o.StoreBackoff, DefaultStoreBackoff)
	setDuration(&o.StoreTimeout, DefaultStoreTimeout)
	setInt(&o.NotifyAttempts, DefaultNotifyAttempts)
	setDuration(&o.NotifyBackoff, DefaultNotifyBackoff)
	setDuration(&o.NotifyTimeout, DefaultNotifyTimeout)
	setDuration(&o.GeocodeTimeout, DefaultGeocodeTimeout)
	setDuration(&o.EmergencyFixTimeout, DefaultEmergencyFixTimeout)
	setDuration(&o.EmergencyMaxFixAge, DefaultEmergencyMaxFixAge)
	setInt(&o.EmergencyNotifyAttempts, DefaultEmergencyNotifyAttempts)

	return o
}

func setFloat(v *float64, def float64) {
	if *v <= 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// Dependencies are the collaborators of the engine. Only Locator is required.
type Dependencies struct {
	// Locator resolves position sources by vehicle.
	Locator position.Locator
	// Store receives positions and session records. Defaults to an in-memory store.
	Store location.Store
	// Notifier delivers alerts. Defaults to notifier.Log.
	Notifier notifier.Notifier
	// Geocoder adds display addresses to alerts. Defaults to geocoding.Nop.
	Geocoder geocoding.Geocoder
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Store == nil {
		d.Store = location.NewMemoryStore()
	}

	if d.Notifier == nil {
		d.Notifier = notifier.Log{}
	}

	if d.Geocoder == nil {
		d.Geocoder = geocoding.Nop{}
	}

	return d
}
