package activation

import "vista/pkg/detect"

// Observer receives session events. Methods are called outside the
// controller lock and may call back into the controller, except for Start
// and Stop: both wait for the session worker that delivers the events and
// would deadlock.
type Observer interface {
	StateChanged(from, to State)
	StatusChanged(status string)
	Spoke(text string)
	Detected(dets []detect.Detection)
}

// Observers fans events out to every element.
type Observers []Observer

func (o Observers) StateChanged(from, to State) {
	for _, ob := range o {
		ob.StateChanged(from, to)
	}
}

func (o Observers) StatusChanged(status string) {
	for _, ob := range o {
		ob.StatusChanged(status)
	}
}

func (o Observers) Spoke(text string) {
	for _, ob := range o {
		ob.Spoke(text)
	}
}

func (o Observers) Detected(dets []detect.Detection) {
	for _, ob := range o {
		ob.Detected(dets)
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnState      func(from, to State)
	OnStatus     func(status string)
	OnSpoken     func(text string)
	OnDetections func(dets []detect.Detection)
}

func (f ObserverFuncs) StateChanged(from, to State) {
	if f.OnState != nil {
		f.OnState(from, to)
	}
}

func (f ObserverFuncs) StatusChanged(status string) {
	if f.OnStatus != nil {
		f.OnStatus(status)
	}
}

func (f ObserverFuncs) Spoke(text string) {
	if f.OnSpoken != nil {
		f.OnSpoken(text)
	}
}

func (f ObserverFuncs) Detected(dets []detect.Detection) {
	if f.OnDetections != nil {
		f.OnDetections(dets)
	}
}

var (
	_ Observer = Observers(nil)
	_ Observer = ObserverFuncs{}
)
