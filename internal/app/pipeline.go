package app

import (
	"context"
	"errors"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/log"
	"github.com/ayusman/mudra/internal/pinch"
	"github.com/ayusman/mudra/internal/status"
	"github.com/ayusman/mudra/internal/store"
)

// ProcessFrame runs one frame through the volume pipeline and publishes the
// resulting State. It must only be called from the loop goroutine.
//
// Frames without a hand never reach the sink; the applied volume stays as it
// is until the next hand sample.
func (a *App) ProcessFrame(ctx context.Context, frame *capture.Frame) status.State {
	a.frames.Add(1)

	st := status.State{
		Seq:     frame.Seq,
		At:      frame.Timestamp,
		Enabled: a.IsEnabled(),
		Sink:    a.dispatcher.Sink().Name(),
	}

	if !st.Enabled {
		return a.publish(st)
	}

	if ok, _ := a.motion.Allow(frame.Mat); !ok {
		// Still scene: keep showing the last hand, change nothing.
		a.copyHand(&st, a.lastHand)
	} else if hand := a.detect(frame); hand != nil {
		a.handFrames.Add(1)

		sample := pinch.Measure(hand, frame.Width, frame.Height, frame.Seq, frame.Timestamp)
		raw := pinch.MapToVolume(sample.Distance, a.config.Mapping)
		a.lastSample, a.lastRaw = sample, raw

		st.HandPresent = true
		st.Distance = sample.Distance
		st.RawVolume = raw
		st.Thumb = hand.PixelPoint(detector.ThumbTip, frame.Width, frame.Height)
		st.Index = hand.PixelPoint(detector.IndexTip, frame.Width, frame.Height)
		st.Points = hand.PixelPoints(frame.Width, frame.Height)
		a.lastHand = st

		if v, ok := a.smoother.Offer(raw, frame.Timestamp); ok {
			a.apply(ctx, v, &st)
		}
	} else {
		a.lastHand = status.State{}
	}

	return a.publish(st)
}

func (a *App) detect(frame *capture.Frame) *detector.HandLandmarks {
	hands, err := a.detector.Detect(frame.Mat)
	if err != nil {
		if errors.Is(err, detector.ErrUnavailable) {
			a.detectFatal = err
			return nil
		}
		a.detectErrs++
		if a.detectErrs == 1 || a.detectErrs%100 == 0 {
			log.Warn("hand detection failed", "err", err, "count", a.detectErrs)
		}
		return nil
	}
	if a.detectErrs > 0 {
		log.Info("hand detection recovered", "after", a.detectErrs)
		a.detectErrs = 0
	}
	return detector.Primary(hands)
}

// apply dispatches v and commits it on success. Failures leave the applied
// volume unchanged so the next qualifying sample retries.
func (a *App) apply(ctx context.Context, v int, st *status.State) {
	res := a.dispatcher.Dispatch(ctx, v)
	a.commands.Add(1)

	if res.OK() {
		a.smoother.Commit(v)
		st.SinkError = ""
	} else {
		a.sinkFailures.Add(1)
		st.SinkError = res.Err.Error()
	}

	if a.config.Journal == nil {
		return
	}
	ev := &store.Event{
		Seq:      a.lastSample.Seq,
		Distance: a.lastSample.Distance,
		Raw:      a.lastRaw,
		Volume:   v,
		OK:       res.OK(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	if err := a.config.Journal.Record(ev); err != nil {
		log.Warn("journal write failed", "err", err)
	}
}

func (a *App) copyHand(dst *status.State, src status.State) {
	dst.HandPresent = src.HandPresent
	dst.Distance = src.Distance
	dst.RawVolume = src.RawVolume
	dst.Thumb = src.Thumb
	dst.Index = src.Index
	dst.Points = append(dst.Points[:0:0], src.Points...)
}

func (a *App) publish(st status.State) status.State {
	st.Volume, st.HasVolume = a.smoother.Last()
	a.publisher.Publish(st)
	return st
}
