package svg

import "embed"

//go:embed assets
var assets embed.FS

func mustAsset(name string) string {
	b, err := assets.ReadFile("assets/" + name)
	if err != nil {
		panic(err)
	}
	return string(b)
}
