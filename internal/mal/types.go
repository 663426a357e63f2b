package mal

// Data is the cached MyAnimeList payload.
type Data struct {
	User        *UserInfo       `json:"user"`
	Watching    []AnimeListItem `json:"watching"`
	Completed   []AnimeListItem `json:"completed"`
	OnHold      []AnimeListItem `json:"onHold"`
	Dropped     []AnimeListItem `json:"dropped"`
	PlanToWatch []AnimeListItem `json:"planToWatch"`
	Statistics  Statistics      `json:"statistics"`
}

// Statistics summarizes the user's anime list.
type Statistics struct {
	TotalAnime    int     `json:"totalAnime"`
	TotalEpisodes int     `json:"totalEpisodes"`
	DaysWatched   float64 `json:"daysWatched"`
	MeanScore     float64 `json:"meanScore"`
	Watching      int     `json:"watching"`
	Completed     int     `json:"completed"`
	OnHold        int     `json:"onHold"`
	Dropped       int     `json:"dropped"`
	PlanToWatch   int     `json:"planToWatch"`
}

// UserInfo is the /users/@me response.
type UserInfo struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	Picture         string          `json:"picture,omitempty"`
	JoinedAt        string          `json:"joined_at,omitempty"`
	AnimeStatistics *AnimeStatistic `json:"anime_statistics,omitempty"`
}

// AnimeStatistic is the anime_statistics field of UserInfo.
type AnimeStatistic struct {
	NumItemsWatching    int     `json:"num_items_watching"`
	NumItemsCompleted   int     `json:"num_items_completed"`
	NumItemsOnHold      int     `json:"num_items_on_hold"`
	NumItemsDropped     int     `json:"num_items_dropped"`
	NumItemsPlanToWatch int     `json:"num_items_plan_to_watch"`
	NumItems            int     `json:"num_items"`
	NumDays             float64 `json:"num_days"`
	NumEpisodes         int     `json:"num_episodes"`
	MeanScore           float64 `json:"mean_score"`
}

// AnimeListItem is one entry of a paginated animelist response.
type AnimeListItem struct {
	Node       AnimeNode  `json:"node"`
	ListStatus ListStatus `json:"list_status"`
}

// AnimeNode is the anime metadata of a list entry.
type AnimeNode struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	MainPicture *Picture `json:"main_picture,omitempty"`
	NumEpisodes int      `json:"num_episodes"`
	StartSeason *Season  `json:"start_season,omitempty"`
	Mean        float64  `json:"mean,omitempty"`
	Status      string   `json:"status,omitempty"`
	MediaType   string   `json:"media_type,omitempty"`
	Synopsis    string   `json:"synopsis,omitempty"`
	Genres      []Genre  `json:"genres,omitempty"`
}

// Picture holds image URLs.
type Picture struct {
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// Season is a broadcast season.
type Season struct {
	Year   int    `json:"year"`
	Season string `json:"season"`
}

// Genre is a named genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListStatus is the user's progress on an entry.
type ListStatus struct {
	Status             string `json:"status"`
	Score              int    `json:"score"`
	NumEpisodesWatched int    `json:"num_episodes_watched"`
	IsRewatching       bool   `json:"is_rewatching"`
	UpdatedAt          string `json:"updated_at"`
	StartDate          string `json:"start_date,omitempty"`
	FinishDate         string `json:"finish_date,omitempty"`
}

type listPage struct {
	Data   []AnimeListItem `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}
