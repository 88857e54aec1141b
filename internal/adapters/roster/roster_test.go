package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/picklist/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const sampleRoster = `game_context: |
  2025 Reefscape. Coral scoring and deep climbs dominate.
teams:
  - team_number: 254
    nickname: The Cheesy Poofs
    stats:
      auto_points: 28.5
      endgame: 12
  - team_number: 1678
    nickname: Citrus Circuits
    stats:
      auto_points: 26
`

func TestFileProvider(t *testing.T) {
	Convey("Given a roster directory", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "casj.yaml"), []byte(sampleRoster), 0o600), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("teams: [oops"), 0o600), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "empty.yaml"), []byte("teams: []\n"), 0o600), ShouldBeNil)
		p := NewFileProvider(dir)
		ctx := context.Background()

		Convey("When loading a known roster", func() {
			r, err := p.Roster(ctx, "casj")

			Convey("Then teams and context are parsed", func() {
				So(err, ShouldBeNil)
				So(r.GameContext, ShouldContainSubstring, "Reefscape")
				So(len(r.Teams), ShouldEqual, 2)
				So(r.Teams[0].TeamNumber, ShouldEqual, 254)
				So(r.Teams[0].Stats["auto_points"], ShouldEqual, 28.5)
			})

			Convey("Then later loads come from memory", func() {
				So(os.Remove(filepath.Join(dir, "casj.yaml")), ShouldBeNil)
				again, err := p.Roster(ctx, "casj")
				So(err, ShouldBeNil)
				So(len(again.Teams), ShouldEqual, 2)
			})
		})

		Convey("When the reference is unknown", func() {
			_, err := p.Roster(ctx, "nope")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, ErrUnknownRoster), ShouldBeTrue)
		})

		Convey("When the reference tries to leave the directory", func() {
			_, err := p.Roster(ctx, "../etc/passwd")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When the file is malformed or empty", func() {
			_, err1 := p.Roster(ctx, "broken")
			_, err2 := p.Roster(ctx, "empty")
			So(errors.Is(err1, model.ErrValidation), ShouldBeTrue)
			So(errors.Is(err2, model.ErrValidation), ShouldBeTrue)
		})
	})

	Convey("Given a static provider", t, func() {
		s := Static{"demo": {Teams: []model.Team{{TeamNumber: 1}}}}
		r, err := s.Roster(context.Background(), "demo")
		So(err, ShouldBeNil)
		So(len(r.Teams), ShouldEqual, 1)
		_, err = s.Roster(context.Background(), "x")
		So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
	})
}
