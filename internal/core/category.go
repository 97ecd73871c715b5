package core

type (
	Category string
	Genre    string
)

const (
	CategoryTicket       Category = "チケット代"
	CategoryGoods        Category = "グッズ代"
	CategoryTravel       Category = "遠征費"
	CategoryStreamTicket Category = "配信チケット代"
	CategoryCafe         Category = "カフェ代"
	CategoryOther        Category = "その他"
)

// FallbackCategory is used when an imported row has no category.
const FallbackCategory = CategoryOther

var categories = []Category{
	CategoryTicket,
	CategoryGoods,
	CategoryTravel,
	CategoryStreamTicket,
	CategoryCafe,
	CategoryOther,
}

// Categories returns the fixed category set in canonical display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

func (c Category) Known() bool {
	for _, k := range categories {
		if c == k {
			return true
		}
	}
	return false
}

const (
	GenreIdol    Genre = "アイドル"
	GenreVTuber  Genre = "VTuber"
	GenreAnime   Genre = "アニメ"
	GenreActor   Genre = "俳優"
	GenreRailway Genre = "鉄道"
	GenreGame    Genre = "ゲーム"
	GenreOther   Genre = "その他"
)

// Genres lists the suggested genres. Person.Genre is free text; these are
// what the client offers by default.
func Genres() []Genre {
	return []Genre{GenreIdol, GenreVTuber, GenreAnime, GenreActor, GenreRailway, GenreGame, GenreOther}
}

// DefaultColors and DefaultIcons are offered when registering a person.
var (
	DefaultColors = []string{"#FF69B4", "#87CEEB", "#98FB98", "#FFB6C1", "#DDA0DD", "#F0E68C", "#FF7F50", "#40E0D0"}
	DefaultIcons  = []string{"🎭", "⭐", "🎤", "💕", "🌟", "🎵", "🎨", "💎"}
)
