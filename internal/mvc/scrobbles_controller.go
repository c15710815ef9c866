package mvc

import (
	"github.com/rs/zerolog"

	"github.com/thesquelched/suggestive-sub000/internal/store"
)

// scrobblePageSize is how many history rows one refresh loads.
const scrobblePageSize = 100

// ScrobblesController feeds the chronological history pane from the
// catalog.
type ScrobblesController struct {
	store  *store.Store
	model  *ScrobbleListModel
	logger *zerolog.Logger
	limit  int
}

// NewScrobblesController builds the controller and registers it.
func NewScrobblesController(st *store.Store, model *ScrobbleListModel, registry *Registry, logger *zerolog.Logger) *ScrobblesController {
	c := &ScrobblesController{
		store:  st,
		model:  model,
		logger: logger,
		limit:  scrobblePageSize,
	}
	registry.Register(c)
	return c
}

func (c *ScrobblesController) Name() string {
	return ControllerScrobbles
}

// Refresh loads the newest page of scrobbles into the model.
func (c *ScrobblesController) Refresh() error {
	var rows []ScrobbleRow
	err := c.store.Scoped(false, func(session *store.Session) error {
		scrobbles, err := session.ScrobblesPage(c.limit, 0)
		if err != nil {
			return err
		}
		rows = make([]ScrobbleRow, 0, len(scrobbles))
		for _, scrobble := range scrobbles {
			row := ScrobbleRow{Time: scrobble.Timestamp}
			if scrobble.Info != nil {
				row.Artist = scrobble.Info.Artist
				row.Title = scrobble.Info.Title
				row.Album = scrobble.Info.Album
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.model.SetRows(rows)
	return nil
}
