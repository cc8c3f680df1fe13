package engine

type ApplicationConfig struct {
	// Path of the TOML config file. A missing file means defaults.
	ConfigPath string
	// Headless forces the headless backend and skips the window.
	Headless bool
	// Frames stops the engine after that many frames. Zero runs until quit.
	Frames int
}
