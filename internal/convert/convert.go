// Package convert holds the mechanical field copies between the wire's
// protobuf timestamp type and the SDK's time.Time. Spec.md treats full
// protocol-message conversion as a trivial external concern; this
// package is the one sliver of it the core still touches, because the
// latency-stamp sequence on every Packet is timestamped at the moment a
// stream reactor receives a message, using the same well-known Timestamp
// type the rest of the wire protocol uses.
package convert

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// TimestampToTime converts a protobuf wire timestamp to time.Time. A nil
// timestamp converts to the zero time, matching "no stamp present".
func TimestampToTime(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.AsTime()
}

// TimeToTimestamp converts a time.Time to a protobuf wire timestamp. The
// zero time converts to nil.
func TimeToTimestamp(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}

// Now stamps the current instant the way the wire client does when it
// tags a freshly received message with an SdkReceived latency point:
// through the protobuf well-known type, then immediately back to
// time.Time, so the rest of the core never holds a *timestamppb.Timestamp.
func Now() time.Time {
	return TimestampToTime(timestamppb.Now())
}
