package livestatus

import (
	"fmt"
	"reflect"
	"testing"
)

func TestDecideTable(t *testing.T) {
	const uid = 42
	liveT1 := Record{UID: uid, Live: true, StartTime: int64p(100), EndTime: int64p(90)}
	offline := Record{UID: uid, Live: false, StartTime: int64p(100), EndTime: int64p(150)}

	freshLiveT1 := Snapshot{UID: uid, Live: true, StartTime: 100}
	freshLiveT2 := Snapshot{UID: uid, Live: true, StartTime: 200}
	freshOffline := Snapshot{UID: uid, Live: false}

	restartOps := func(t int64) []Op {
		return []Op{
			{Kind: OpReset},
			{Kind: OpSetStatus, Live: true},
			{Kind: OpSetStartTime, Time: t},
			{Kind: OpDeleteEndTime},
		}
	}

	tests := []struct {
		name      string
		persisted Record
		found     bool
		fresh     Snapshot
		want      Transition
		wantOps   []Op
		wantRec   Record
	}{
		{
			name:    "absent + live t1",
			fresh:   freshLiveT1,
			want:    TransitionNone,
			wantOps: []Op{{Kind: OpSetStatus, Live: true}, {Kind: OpSetStartTime, Time: 100}},
			wantRec: Record{UID: uid, Live: true, StartTime: int64p(100)},
		},
		{
			name:    "absent + live t2",
			fresh:   freshLiveT2,
			want:    TransitionNone,
			wantOps: []Op{{Kind: OpSetStatus, Live: true}, {Kind: OpSetStartTime, Time: 200}},
			wantRec: Record{UID: uid, Live: true, StartTime: int64p(200)},
		},
		{
			name:    "absent + offline",
			fresh:   freshOffline,
			want:    TransitionNone,
			wantOps: []Op{{Kind: OpSetStatus, Live: false}},
			wantRec: Record{UID: uid, Live: false},
		},
		{
			name:      "live t1 + live t1",
			persisted: liveT1,
			found:     true,
			fresh:     freshLiveT1,
			want:      TransitionNone,
			wantRec:   liveT1,
		},
		{
			name:      "live t1 + live t2",
			persisted: liveT1,
			found:     true,
			fresh:     freshLiveT2,
			want:      TransitionRestartedLive,
			wantOps:   restartOps(200),
			wantRec:   Record{UID: uid, Live: true, StartTime: int64p(200)},
		},
		{
			name:      "live t1 + offline",
			persisted: liveT1,
			found:     true,
			fresh:     freshOffline,
			want:      TransitionWentOffline,
			wantOps:   []Op{{Kind: OpSetStatus, Live: false}},
			wantRec:   Record{UID: uid, Live: false, StartTime: int64p(100), EndTime: int64p(90)},
		},
		{
			name:      "offline + live t1",
			persisted: offline,
			found:     true,
			fresh:     freshLiveT1,
			want:      TransitionWentLive,
			wantOps:   restartOps(100),
			wantRec:   Record{UID: uid, Live: true, StartTime: int64p(100)},
		},
		{
			name:      "offline + live t2",
			persisted: offline,
			found:     true,
			fresh:     freshLiveT2,
			want:      TransitionWentLive,
			wantOps:   restartOps(200),
			wantRec:   Record{UID: uid, Live: true, StartTime: int64p(200)},
		},
		{
			name:      "offline + offline",
			persisted: offline,
			found:     true,
			fresh:     freshOffline,
			want:      TransitionNone,
			wantRec:   offline,
		},
		{
			name:      "live without start time + live",
			persisted: Record{UID: uid, Live: true},
			found:     true,
			fresh:     freshLiveT1,
			want:      TransitionRestartedLive,
			wantOps:   restartOps(100),
			wantRec:   Record{UID: uid, Live: true, StartTime: int64p(100)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.persisted, tt.found, tt.fresh)
			if d.Transition != tt.want {
				t.Errorf("Transition = %v, want %v", d.Transition, tt.want)
			}
			if len(d.Ops) != len(tt.wantOps) || (len(tt.wantOps) > 0 && !reflect.DeepEqual(d.Ops, tt.wantOps)) {
				t.Errorf("Ops = %+v, want %+v", d.Ops, tt.wantOps)
			}
			if !reflect.DeepEqual(d.Record, tt.wantRec) {
				t.Errorf("Record = %s, want %s", fmtRecord(d.Record), fmtRecord(tt.wantRec))
			}
		})
	}
}

func TestDecideNeverWritesEndTime(t *testing.T) {
	persisted := []struct {
		rec   Record
		found bool
	}{
		{Record{}, false},
		{Record{UID: 1, Live: true, StartTime: int64p(1)}, true},
		{Record{UID: 1, Live: false}, true},
	}
	fresh := []Snapshot{
		{UID: 1, Live: true, StartTime: 1},
		{UID: 1, Live: true, StartTime: 2},
		{UID: 1, Live: false},
	}
	for _, p := range persisted {
		for _, f := range fresh {
			d := Decide(p.rec, p.found, f)
			if d.Record.EndTime != nil && (p.rec.EndTime == nil || *d.Record.EndTime != *p.rec.EndTime) {
				t.Errorf("Decide(%s, %+v) wrote end time", fmtRecord(p.rec), f)
			}
		}
	}
}

func TestTransitionString(t *testing.T) {
	if TransitionRestartedLive.String() != "restarted_live" {
		t.Errorf("got %q", TransitionRestartedLive.String())
	}
	if Transition(99).String() != "transition(99)" {
		t.Errorf("got %q", Transition(99).String())
	}
}

func fmtRecord(r Record) string {
	opt := func(p *int64) string {
		if p == nil {
			return "nil"
		}
		return fmt.Sprint(*p)
	}
	return fmt.Sprintf("{uid=%d live=%v start=%s end=%s}", r.UID, r.Live, opt(r.StartTime), opt(r.EndTime))
}
