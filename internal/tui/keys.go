package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeyPause    = "p"
	KeyResume   = "r"
	KeyIntr     = "i"
	KeyAddIter  = "+"
	KeyDropIter = "-"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("p: pause | r: resume | i: interrupt | +/-: iteration budget | j/k: scroll | q: quit")
}
