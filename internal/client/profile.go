package client

import (
	"math/rand"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

var (
	Palette = []string{"#EF4444", "#3B82F6", "#10B981", "#F59E0B", "#8B5CF6", "#EC4899"}

	adjectives = []string{"Swift", "Bright", "Calm", "Bold", "Keen", "Warm", "Cool", "Wild"}
	animals    = []string{"Fox", "Owl", "Bear", "Wolf", "Hawk", "Lynx", "Puma", "Deer"}
)

// RandomProfile picks an "Adjective Animal" name and a palette color.
func RandomProfile() model.Profile {
	return model.Profile{
		Name:  adjectives[rand.Intn(len(adjectives))] + " " + animals[rand.Intn(len(animals))],
		Color: Palette[rand.Intn(len(Palette))],
	}
}
