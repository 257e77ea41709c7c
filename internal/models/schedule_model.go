package models

import "time"

// ScheduleKind distinguishes the three ways a post leaves the compose
// screen: saved as a draft, dispatched immediately, or queued for a
// future time.
type ScheduleKind int

const (
	ScheduleDraft ScheduleKind = iota
	ScheduleImmediate
	ScheduleAt
)

// Schedule is an explicit sum type replacing a nullable timestamp. At is
// meaningful only when Kind == ScheduleAt.
type Schedule struct {
	Kind ScheduleKind
	At   time.Time
}

func DraftSchedule() Schedule {
	return Schedule{Kind: ScheduleDraft}
}

func ImmediateSchedule() Schedule {
	return Schedule{Kind: ScheduleImmediate}
}

func ScheduleFor(t time.Time) Schedule {
	return Schedule{Kind: ScheduleAt, At: t}
}

func (s Schedule) IsDraft() bool {
	return s.Kind == ScheduleDraft
}

func (s Schedule) IsImmediate() bool {
	return s.Kind == ScheduleImmediate
}

func (s Schedule) IsScheduled() bool {
	return s.Kind == ScheduleAt
}

// Time returns the scheduled time as a nullable pointer for persistence.
func (s Schedule) Time() *time.Time {
	if s.Kind != ScheduleAt {
		return nil
	}
	t := s.At
	return &t
}

// ScheduleOf reconstructs the sum type from a stored post row.
func ScheduleOf(p *Post) Schedule {
	if p.Status == PostStatusDraft {
		return DraftSchedule()
	}
	if p.ScheduledTime == nil {
		return ImmediateSchedule()
	}
	return ScheduleFor(*p.ScheduledTime)
}
