package quiz

import (
	"encoding/json"
	"io"
	"math/rand"
	"os"

	"github.com/greenworld/greenworld/internal/errors"
)

const optionCount = 4

// rawItem is the question bank wire format: a prompt, the correct answer
// and exactly three wrong ones.
type rawItem struct {
	Q       string   `json:"q"`
	Correct string   `json:"correct"`
	Wrong   []string `json:"wrong"`
}

// Question is one evaluated round: a prompt and four shuffled options, one
// of which is correct.
type Question struct {
	Prompt       string
	Options      []string
	CorrectIndex int
}

// Bank is a validated set of source questions. Sessions draw a fresh
// shuffled subset from it.
type Bank struct {
	items []rawItem
}

// LoadBank reads and validates a JSON question bank. An empty or malformed
// bank is fatal for quiz session creation.
func LoadBank(r io.Reader) (Bank, error) {
	var raw []rawItem
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Bank{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid question bank: %v", err))
	}

	items := make([]rawItem, 0, len(raw))
	for _, it := range raw {
		if it.Q == "" || it.Correct == "" || len(it.Wrong) != optionCount-1 {
			continue
		}
		items = append(items, it)
	}

	if len(items) == 0 {
		return Bank{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid question bank: no usable questions"))
	}

	return Bank{items: items}, nil
}

// LoadBankFile loads a question bank from a JSON file on disk.
func LoadBankFile(path string) (Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bank{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("open question bank: %v", err))
	}
	defer f.Close()

	return LoadBank(f)
}

// Len reports how many usable questions the bank holds.
func (b Bank) Len() int { return len(b.items) }

// Build draws limit distinct questions with rng and shuffles each
// question's options. Both the subset and the option order depend on the
// seed, so two sessions with different seeds will not repeat identically.
func (b Bank) Build(rng *rand.Rand, limit int) []Question {
	picked := PickRandom(b.items, limit, rng)

	qs := make([]Question, 0, len(picked))
	for _, it := range picked {
		opts := make([]string, 0, optionCount)
		opts = append(opts, it.Correct)
		opts = append(opts, it.Wrong...)
		rng.Shuffle(len(opts), func(i, j int) {
			opts[i], opts[j] = opts[j], opts[i]
		})

		correct := 0
		for i, o := range opts {
			if o == it.Correct {
				correct = i
				break
			}
		}

		qs = append(qs, Question{
			Prompt:       it.Q,
			Options:      opts,
			CorrectIndex: correct,
		})
	}

	return qs
}

// PickRandom returns min(n, len(items)) distinct items in random order.
func PickRandom[T any](items []T, n int, rng *rand.Rand) []T {
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}
