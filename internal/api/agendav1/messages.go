// Package agendav1 defines the agenda.v1.SchedulingService gRPC API: its messages, the
// service descriptor, and a typed client. Messages travel with the JSON codec registered
// under CodecName.
//
// Timestamps are *timestamppb.Timestamp encoded by encoding/json, so on the wire they are
// objects of Unix seconds and nanos such as {"seconds":1767621600,"nanos":5}, not RFC 3339
// strings. Zero fields are omitted and a nil timestamp is null. The HTTP surface uses RFC 3339 instead.
package agendav1

import "google.golang.org/protobuf/types/known/timestamppb"

type Appointment struct {
	Id                 string                 `json:"id"`
	ProfessionalId     string                 `json:"professional_id"`
	ServiceId          string                 `json:"service_id"`
	ResourceId         string                 `json:"resource_id,omitempty"`
	ClientId           string                 `json:"client_id,omitempty"`
	StartTime          *timestamppb.Timestamp `json:"start_time"`
	EndTime            *timestamppb.Timestamp `json:"end_time"`
	Status             string                 `json:"status"`
	RecurrenceGroupId  string                 `json:"recurrence_group_id,omitempty"`
	RecurrenceIndex    int32                  `json:"recurrence_index"`
	ForcedOverlap      bool                   `json:"forced_overlap"`
	Notes              string                 `json:"notes,omitempty"`
	ColorTag           string                 `json:"color_tag,omitempty"`
	CancelledAt        *timestamppb.Timestamp `json:"cancelled_at,omitempty"`
	CancelledBy        string                 `json:"cancelled_by,omitempty"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	CreatedAt          *timestamppb.Timestamp `json:"created_at"`
	UpdatedAt          *timestamppb.Timestamp `json:"updated_at"`
}

type Recurrence struct {
	// Frequency is one of none, daily, weekly or monthly.
	Frequency string `json:"frequency"`
	Count     int32  `json:"count"`
}

type Interval struct {
	StartTime *timestamppb.Timestamp `json:"start_time"`
	EndTime   *timestamppb.Timestamp `json:"end_time"`
}

type Overlap struct {
	AppointmentId  string                 `json:"appointment_id"`
	ProfessionalId string                 `json:"professional_id"`
	ResourceId     string                 `json:"resource_id,omitempty"`
	StartTime      *timestamppb.Timestamp `json:"start_time"`
	EndTime        *timestamppb.Timestamp `json:"end_time"`
	Status         string                 `json:"status"`
	ForcedOverlap  bool                   `json:"forced_overlap"`
	// Reason is "professional" or "resource".
	Reason string `json:"reason"`
}

type InstanceConflict struct {
	Index     int32                  `json:"index"`
	StartTime *timestamppb.Timestamp `json:"start_time"`
	EndTime   *timestamppb.Timestamp `json:"end_time"`
	Overlaps  []*Overlap             `json:"overlaps"`
}

type RequestBookingRequest struct {
	ProfessionalId string                 `json:"professional_id"`
	ServiceId      string                 `json:"service_id"`
	ResourceId     string                 `json:"resource_id,omitempty"`
	ClientId       string                 `json:"client_id,omitempty"`
	StartTime      *timestamppb.Timestamp `json:"start_time"`
	// DurationMinutes overrides the service duration when positive.
	DurationMinutes int32       `json:"duration_minutes,omitempty"`
	Recurrence      *Recurrence `json:"recurrence,omitempty"`
	ForceOverlap    bool        `json:"force_overlap,omitempty"`
	InitialStatus   string      `json:"initial_status,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	ColorTag        string      `json:"color_tag,omitempty"`
}

// RequestBookingResponse carries either the created appointments or, when nothing was
// created, the per-instance conflicts.
type RequestBookingResponse struct {
	Appointments []*Appointment      `json:"appointments"`
	Conflicts    []*InstanceConflict `json:"conflicts"`
	Replayed     bool                `json:"replayed,omitempty"`
}

type RequestCancellationRequest struct {
	AppointmentId string `json:"appointment_id"`
	// Actor is client or staff. Authenticated callers get it from their token instead.
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type RequestCancellationResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type TransitionAppointmentRequest struct {
	AppointmentId string `json:"appointment_id"`
	Status        string `json:"status"`
}

type TransitionAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type RescheduleAppointmentRequest struct {
	AppointmentId string                 `json:"appointment_id"`
	NewStartTime  *timestamppb.Timestamp `json:"new_start_time"`
	Actor         string                 `json:"actor,omitempty"`
	ForceOverlap  bool                   `json:"force_overlap,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
}

type RescheduleAppointmentResponse struct {
	// Cancelled is unset when the new slot conflicted and nothing changed.
	Cancelled *Appointment            `json:"cancelled,omitempty"`
	Booking   *RequestBookingResponse `json:"booking"`
}

type GetAppointmentRequest struct {
	AppointmentId string `json:"appointment_id"`
}

type GetAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ListAppointmentsRequest struct {
	ProfessionalId    string                 `json:"professional_id,omitempty"`
	ResourceId        string                 `json:"resource_id,omitempty"`
	ClientId          string                 `json:"client_id,omitempty"`
	RecurrenceGroupId string                 `json:"recurrence_group_id,omitempty"`
	WindowStart       *timestamppb.Timestamp `json:"window_start,omitempty"`
	WindowEnd         *timestamppb.Timestamp `json:"window_end,omitempty"`
	Statuses          []string               `json:"statuses,omitempty"`
	ForcedOnly        bool                   `json:"forced_only,omitempty"`
	Limit             int32                  `json:"limit,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

type OpenIntervalsRequest struct {
	ProfessionalId string `json:"professional_id"`
	// Date is the business-local calendar date, YYYY-MM-DD.
	Date string `json:"date"`
}

type OpenIntervalsResponse struct {
	Intervals []*Interval `json:"intervals"`
}

type PreviewConflictsRequest struct {
	ProfessionalId  string                 `json:"professional_id"`
	ResourceId      string                 `json:"resource_id,omitempty"`
	ServiceId       string                 `json:"service_id,omitempty"`
	StartTime       *timestamppb.Timestamp `json:"start_time"`
	DurationMinutes int32                  `json:"duration_minutes,omitempty"`
}

type PreviewConflictsResponse struct {
	Overlaps []*Overlap `json:"overlaps"`
}
