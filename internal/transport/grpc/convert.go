package grpc

import (
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"

	"agenda/backend/internal/api/agendav1"
	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/scheduling"
)

func toAPIAppointment(a domain.Appointment) *agendav1.Appointment {
	out := &agendav1.Appointment{
		Id:                 a.ID.String(),
		ProfessionalId:     a.ProfessionalID,
		ServiceId:          a.ServiceID,
		ResourceId:         a.ResourceID,
		ClientId:           a.ClientID,
		StartTime:          timestamppb.New(a.StartTime),
		EndTime:            timestamppb.New(a.EndTime),
		Status:             string(a.Status),
		RecurrenceIndex:    int32(a.RecurrenceIndex),
		ForcedOverlap:      a.ForcedOverlap,
		Notes:              a.Notes,
		ColorTag:           a.ColorTag,
		CancelledBy:        string(a.CancelledBy),
		CancellationReason: a.CancellationReason,
		CreatedAt:          timestamppb.New(a.CreatedAt),
		UpdatedAt:          timestamppb.New(a.UpdatedAt),
	}
	if a.RecurrenceGroupID != uuid.Nil {
		out.RecurrenceGroupId = a.RecurrenceGroupID.String()
	}
	if a.CancelledAt != nil {
		out.CancelledAt = timestamppb.New(*a.CancelledAt)
	}
	return out
}

func toAPIBookingResult(res scheduling.BookingResult) *agendav1.RequestBookingResponse {
	out := &agendav1.RequestBookingResponse{
		Appointments: make([]*agendav1.Appointment, 0, len(res.Appointments)),
		Conflicts:    make([]*agendav1.InstanceConflict, 0, len(res.Conflicts.Entries)),
		Replayed:     res.Replayed,
	}
	for _, a := range res.Appointments {
		out.Appointments = append(out.Appointments, toAPIAppointment(a))
	}
	for _, e := range res.Conflicts.Entries {
		out.Conflicts = append(out.Conflicts, &agendav1.InstanceConflict{
			Index:     int32(e.Index),
			StartTime: timestamppb.New(e.Candidate.Start),
			EndTime:   timestamppb.New(e.Candidate.End),
			Overlaps:  toAPIOverlaps(e.Overlaps),
		})
	}
	return out
}

func toAPIOverlaps(overlaps []domain.Overlap) []*agendav1.Overlap {
	out := make([]*agendav1.Overlap, 0, len(overlaps))
	for _, o := range overlaps {
		out = append(out, &agendav1.Overlap{
			AppointmentId:  o.AppointmentID.String(),
			ProfessionalId: o.ProfessionalID,
			ResourceId:     o.ResourceID,
			StartTime:      timestamppb.New(o.Interval.Start),
			EndTime:        timestamppb.New(o.Interval.End),
			Status:         string(o.Status),
			ForcedOverlap:  o.ForcedOverlap,
			Reason:         string(o.Reason),
		})
	}
	return out
}

func toAPIIntervals(intervals []domain.Interval) []*agendav1.Interval {
	out := make([]*agendav1.Interval, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, &agendav1.Interval{
			StartTime: timestamppb.New(iv.Start),
			EndTime:   timestamppb.New(iv.End),
		})
	}
	return out
}
