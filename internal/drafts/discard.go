package drafts

import (
	"context"
	"fmt"
	"time"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

// RemoteDeleter removes the server-side mirror of a draft.
type RemoteDeleter interface {
	DeleteDraftRemote(ctx context.Context, draftID string) (bool, error)
}

// Discard deletes the remote mirror of id on a best-effort basis, then
// always deletes the local entry.
func (s *Store) Discard(ctx context.Context, remote RemoteDeleter, id string) error {
	if remote != nil {
		ok, err := remote.DeleteDraftRemote(ctx, id)
		switch {
		case err != nil:
			s.log.Warn("deleting remote draft, continuing locally", "draft_id", id, "err", err)
		case !ok:
			s.log.Warn("backend refused remote draft delete, continuing locally", "draft_id", id)
		}
	}
	if err := s.Delete(ctx, id); err != nil {
		return fmt.Errorf("discarding draft %s: %w", id, err)
	}
	return nil
}

// RelativeSaveTime renders how long ago t was relative to now:
// under an hour is "刚刚", under a day "N小时前", otherwise "N天前".
func RelativeSaveTime(now, t time.Time) string {
	hours := int(now.Sub(t) / time.Hour)
	switch {
	case hours < 1:
		return "刚刚"
	case hours < 24:
		return fmt.Sprintf("%d小时前", hours)
	default:
		return fmt.Sprintf("%d天前", hours/24)
	}
}

// Summary is a draft as shown in the draft list.
type Summary struct {
	*checkin.Draft
	SaveTimeText string
	RatingText   string
	MoodText     string
}

// Summaries returns List decorated with display labels.
func (s *Store) Summaries(ctx context.Context) []Summary {
	now := s.now()
	list := s.List(ctx)
	out := make([]Summary, len(list))
	for i, d := range list {
		out[i] = Summary{
			Draft:        d,
			SaveTimeText: RelativeSaveTime(now, d.SaveTime),
			RatingText:   checkin.RatingLabel(d.Rating),
			MoodText:     checkin.MoodLabel(d.Mood),
		}
	}
	return out
}
