// Package fortune implements the omikuji decks and the draw.
package fortune

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/and161185/omikuji/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Deck names.
const (
	DeckOmikuji   = "omikuji"
	DeckLuckyCat  = "luckycat"
	defaultDeckID = DeckOmikuji
)

// Source picks an index in [0, n).
type Source interface {
	IntN(n int) int
}

// Deck produces a title/message pair and the text used when sharing it.
type Deck struct {
	Name  string
	pick  func(src Source) (title, message string)
	share func(title, message string) string
}

type slip struct{ title, message string }

var omikujiSlips = []slip{
	{"大吉", "今日は攻めてOK。新しい提案が刺さる日！"},
	{"中吉", "コツコツが実を結ぶ。進捗共有を大切に。"},
	{"小吉", "小さな改善が大きな効果に。1つ改善しよう。"},
	{"末吉", "焦らず整える。仕込みに最適。"},
	{"凶", "無理は禁物。丁寧に確認してミス回避。"},
}

var (
	catFeatures = []string{
		"太っちょの", "人なつこい", "おっとりした", "ちょっと気まぐれな",
		"食いしん坊な", "すばしっこい", "昼寝が大好きな",
	}
	catBreeds = []string{
		"スコティッシュフォールド", "シャム猫", "マンチカン", "アメリカンショートヘア",
		"ノルウェージャンフォレストキャット", "ベンガル", "三毛猫", "サバトラ",
		"茶トラ", "黒猫", "白猫",
	}
)

// Omikuji is the classic five-slip fortune deck.
func Omikuji() Deck {
	return Deck{
		Name: DeckOmikuji,
		pick: func(src Source) (string, string) {
			s := omikujiSlips[src.IntN(len(omikujiSlips))]
			return s.title, s.message
		},
		share: func(title, message string) string {
			return fmt.Sprintf("本日のおみくじ：%s\n%s", title, message)
		},
	}
}

// LuckyCat draws a feature and a breed independently.
func LuckyCat() Deck {
	return Deck{
		Name: DeckLuckyCat,
		pick: func(src Source) (string, string) {
			feature := catFeatures[src.IntN(len(catFeatures))]
			breed := catBreeds[src.IntN(len(catBreeds))]
			title := feature + " " + breed
			return title, "今日のラッキー猫は… " + title
		},
		share: func(title, _ string) string {
			return fmt.Sprintf("🐈‍⬛ ラッキー猫占い 🐾\n今日のあなたのラッキー猫は…\n%s だにゃ！✨", title)
		},
	}
}

var decks = map[string]func() Deck{
	DeckOmikuji:  Omikuji,
	DeckLuckyCat: LuckyCat,
}

// Lookup returns the deck by name; empty name selects the omikuji deck.
func Lookup(name string) (Deck, error) {
	if name == "" {
		name = defaultDeckID
	}
	mk, ok := decks[name]
	if !ok {
		return Deck{}, fmt.Errorf("unknown deck %q (known: %v)", name, Names())
	}
	return mk(), nil
}

// Names lists the registered deck names in sorted order.
func Names() []string {
	out := make([]string, 0, len(decks))
	for n := range decks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Drawer draws fortunes from a deck.
type Drawer struct {
	deck Deck
	src  Source
	now  func() time.Time
}

// NewDrawer constructs a Drawer; nil src uses the global math/rand/v2 generator.
func NewDrawer(deck Deck, src Source) *Drawer {
	if src == nil {
		src = globalSource{}
	}
	return &Drawer{deck: deck, src: src, now: time.Now}
}

// Deck returns the deck name.
func (d *Drawer) Deck() string { return d.deck.Name }

// Draw returns a new fortune with a fresh ID.
func (d *Drawer) Draw() (model.Fortune, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.Fortune{}, err
	}
	title, msg := d.deck.pick(d.src)
	return model.Fortune{
		ID:      id,
		Deck:    d.deck.Name,
		Title:   title,
		Message: msg,
		DrawnAt: d.now().UTC(),
	}, nil
}

// ShareText renders the text posted when sharing f.
func ShareText(f model.Fortune) string {
	deck, err := Lookup(f.Deck)
	if err != nil {
		deck = Omikuji()
	}
	return deck.share(f.Title, f.Message)
}

// Messages wraps the share text as a single text message.
func Messages(f model.Fortune) []model.Message {
	return []model.Message{model.TextMessage(ShareText(f))}
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }
