package anilist

// Data is the cached AniList payload.
type Data struct {
	User                *User       `json:"user"`
	Watching            []Entry     `json:"watching"`
	Completed           []Entry     `json:"completed"`
	OnHold              []Entry     `json:"onHold"`
	Dropped             []Entry     `json:"dropped"`
	PlanToWatch         []Entry     `json:"planToWatch"`
	FavouriteCharacters []Character `json:"favouriteCharacters"`
	Statistics          Statistics  `json:"statistics"`
}

// Statistics summarizes the user's anime list.
type Statistics struct {
	TotalAnime    int     `json:"totalAnime"`
	TotalEpisodes int     `json:"totalEpisodes"`
	DaysWatched   int     `json:"daysWatched"`
	MeanScore     float64 `json:"meanScore"`
	Watching      int     `json:"watching"`
	Completed     int     `json:"completed"`
	OnHold        int     `json:"onHold"`
	Dropped       int     `json:"dropped"`
	PlanToWatch   int     `json:"planToWatch"`
}

// -----------------------------------------------------------------------------
// GraphQL Shapes
// -----------------------------------------------------------------------------
//
// Field names map to GraphQL fields in lower camel case; graphql tags carry
// arguments. json tags shape the API output.

// FuzzyDate is AniList's partially known date.
type FuzzyDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

// Image holds cover or avatar URLs.
type Image struct {
	Large  string `json:"large"`
	Medium string `json:"medium"`
}

// User is the profile returned by the user query.
type User struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Avatar     Image  `json:"avatar"`
	CreatedAt  int    `json:"createdAt"`
	Statistics struct {
		Anime struct {
			Count             int     `json:"count"`
			MeanScore         float64 `json:"meanScore"`
			StandardDeviation float64 `json:"standardDeviation"`
			MinutesWatched    int     `json:"minutesWatched"`
			EpisodesWatched   int     `json:"episodesWatched"`
			Statuses          []struct {
				Status string `json:"status"`
				Count  int    `json:"count"`
			} `json:"statuses"`
		} `json:"anime"`
	} `json:"statistics"`
	Favourites struct {
		Characters struct {
			Nodes []Character `json:"nodes"`
		} `json:"characters" graphql:"characters(page: 1, perPage: 25)"`
	} `json:"favourites"`
}

// Character is a favourite character.
type Character struct {
	ID   int `json:"id"`
	Name struct {
		Full               string   `json:"full"`
		Native             *string  `json:"native"`
		Alternative        []string `json:"alternative"`
		AlternativeSpoiler []string `json:"alternativeSpoiler"`
	} `json:"name"`
	Image       Image     `json:"image"`
	Description *string   `json:"description"`
	Gender      *string   `json:"gender"`
	Age         *string   `json:"age"`
	DateOfBirth FuzzyDate `json:"dateOfBirth"`
	BloodType   *string   `json:"bloodType"`
	SiteURL     string    `json:"siteUrl" graphql:"siteUrl"`
}

// Entry is one media list entry.
type Entry struct {
	ID          int       `json:"id"`
	MediaID     int       `json:"mediaId" graphql:"mediaId"`
	Status      string    `json:"status"`
	Score       float64   `json:"score"`
	Progress    int       `json:"progress"`
	StartedAt   FuzzyDate `json:"startedAt"`
	CompletedAt FuzzyDate `json:"completedAt"`
	UpdatedAt   int       `json:"updatedAt"`
	Media       Media     `json:"media"`
}

// Media is the anime attached to an entry.
type Media struct {
	ID    int `json:"id"`
	Title struct {
		Romaji  string  `json:"romaji"`
		English *string `json:"english"`
		Native  *string `json:"native"`
	} `json:"title"`
	CoverImage struct {
		ExtraLarge string `json:"extraLarge"`
		Large      string `json:"large"`
		Medium     string `json:"medium"`
	} `json:"coverImage"`
	BannerImage  *string  `json:"bannerImage"`
	Format       *string  `json:"format"`
	Status       *string  `json:"status"`
	Source       *string  `json:"source"`
	Episodes     *int     `json:"episodes"`
	Duration     *int     `json:"duration"`
	Season       *string  `json:"season"`
	SeasonYear   *int     `json:"seasonYear"`
	AverageScore *int     `json:"averageScore"`
	MeanScore    *int     `json:"meanScore"`
	Genres       []string `json:"genres"`
	Description  *string  `json:"description" graphql:"description(asHtml: false)"`
	Studios      struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios" graphql:"studios(isMain: true)"`
	StartDate         FuzzyDate `json:"startDate"`
	EndDate           FuzzyDate `json:"endDate"`
	NextAiringEpisode *struct {
		AiringAt        int `json:"airingAt"`
		TimeUntilAiring int `json:"timeUntilAiring"`
		Episode         int `json:"episode"`
	} `json:"nextAiringEpisode"`
	Trailer *struct {
		ID   *string `json:"id"`
		Site *string `json:"site"`
	} `json:"trailer"`
}
