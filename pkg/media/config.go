package media

// Files played for a given kind of local media.
type Source struct {
	// Path to an IVF file with VP8 frames.
	Video string `yaml:"video"`
	// Path to an Ogg file with Opus pages. Optional.
	Audio string `yaml:"audio"`
}

type Config struct {
	Camera Source `yaml:"camera"`
	Screen Source `yaml:"screen"`
	// Where the remote tracks get recorded. Recording is disabled if empty.
	RecordDir string `yaml:"recordDir"`
	// Play the files in a loop instead of stopping at the end.
	Loop bool `yaml:"loop"`
}

func (c Config) source(kind Kind) (Source, bool) {
	switch kind {
	case KindCamera:
		return c.Camera, c.Camera.Video != "" || c.Camera.Audio != ""
	case KindScreen:
		return c.Screen, c.Screen.Video != "" || c.Screen.Audio != ""
	default:
		return Source{}, false
	}
}
