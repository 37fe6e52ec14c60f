package tui

import "github.com/charmbracelet/bubbles/key"

func Key(help string, keyboardKey ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keyboardKey...), key.WithHelp(keyboardKey[0], help))
}

type keyMap struct {
	Up, Down, Left, Right key.Binding
	Toggle, Column, Clear key.Binding
	Mute, Solo            key.Binding
	VolDown, VolUp        key.Binding
	Play, Audition, Hush  key.Binding
	Faster, Slower        key.Binding
	SwingDown, SwingUp    key.Binding
	TrimStartEarlier      key.Binding
	TrimStartLater        key.Binding
	TrimEndEarlier        key.Binding
	TrimEndLater          key.Binding
	Save, Load            key.Binding
	Help, Quit            key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:               Key("up", "k", "up"),
		Down:             Key("down", "j", "down"),
		Left:             Key("left", "h", "left"),
		Right:            Key("right", "l", "right"),
		Toggle:           Key("toggle step", "space", " "),
		Column:           Key("toggle column", "c"),
		Clear:            Key("clear", "x"),
		Mute:             Key("mute", "m"),
		Solo:             Key("solo", "s"),
		VolDown:          Key("vol -", "["),
		VolUp:            Key("vol +", "]"),
		Play:             Key("play/stop", "p"),
		Audition:         Key("audition", "enter"),
		Hush:             Key("stop voices", "esc"),
		Faster:           Key("bpm +5", "+", "="),
		Slower:           Key("bpm -5", "-", "_"),
		SwingDown:        Key("swing -", "<", ","),
		SwingUp:          Key("swing +", ">", "."),
		TrimStartEarlier: Key("trim start -", "a"),
		TrimStartLater:   Key("trim start +", "d"),
		TrimEndEarlier:   Key("trim end -", "z"),
		TrimEndLater:     Key("trim end +", "e"),
		Save:             Key("save", "w"),
		Load:             Key("load", "r"),
		Help:             Key("help", "?"),
		Quit:             Key("quit", "q", "ctrl+c"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Play, k.Mute, k.Solo, k.Audition, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Toggle, k.Column, k.Clear, k.Mute, k.Solo},
		{k.VolDown, k.VolUp, k.Faster, k.Slower, k.SwingDown, k.SwingUp},
		{k.Audition, k.TrimStartEarlier, k.TrimStartLater, k.TrimEndEarlier, k.TrimEndLater},
		{k.Play, k.Hush, k.Save, k.Load, k.Help, k.Quit},
	}
}
