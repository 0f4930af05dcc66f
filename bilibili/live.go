package bilibili

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/onnwee/starwatch/livestatus"
)

// liveStatusLive is the live_status value for "streaming now". 2 means a
// replay loop and counts as offline.
const liveStatusLive = 1

type roomInfo struct {
	UID        flexInt `json:"uid"`
	RoomID     flexInt `json:"room_id"`
	Title      string  `json:"title"`
	Uname      string  `json:"uname"`
	LiveStatus int     `json:"live_status"`
	LiveTime   flexInt `json:"live_time"`
	Cover      string  `json:"cover_from_user"`
}

func (r roomInfo) snapshot() livestatus.Snapshot {
	s := livestatus.Snapshot{
		UID:    int64(r.UID),
		RoomID: int64(r.RoomID),
		Live:   r.LiveStatus == liveStatusLive,
		Title:  r.Title,
		Name:   r.Uname,
		Cover:  r.Cover,
	}
	if s.Live {
		s.StartTime = int64(r.LiveTime)
	}
	return s
}

// LiveStatuses fetches the live status of every uid in one call. Subjects
// without a live room are absent from the result.
func (c *Client) LiveStatuses(ctx context.Context, uids []int64) (map[int64]livestatus.Snapshot, error) {
	out := make(map[int64]livestatus.Snapshot, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	body, err := json.Marshal(map[string][]int64{"uids": uids})
	if err != nil {
		return nil, err
	}
	const path = "/room/v1/Room/get_status_info_by_uids"
	req, err := c.newRequest(ctx, http.MethodPost, c.liveBase()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	// data is an object keyed by uid string, or an empty array when nothing matched.
	var raw json.RawMessage
	if err := c.do(req, path, &raw); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || raw[0] == '[' {
		return out, nil
	}
	var rooms map[string]roomInfo
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, fmt.Errorf("bilibili %s: decode rooms: %w", path, err)
	}
	for key, r := range rooms {
		if r.UID == 0 {
			if uid, err := strconv.ParseInt(key, 10, 64); err == nil {
				r.UID = flexInt(uid)
			}
		}
		out[int64(r.UID)] = r.snapshot()
	}
	return out, nil
}

// LiveStatus fetches the live status of a single uid.
func (c *Client) LiveStatus(ctx context.Context, uid int64) (livestatus.Snapshot, bool, error) {
	m, err := c.LiveStatuses(ctx, []int64{uid})
	if err != nil {
		return livestatus.Snapshot{}, false, err
	}
	s, ok := m[uid]
	return s, ok, nil
}
