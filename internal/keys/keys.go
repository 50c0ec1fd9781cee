// Package keys names the console's key bindings as Bubble Tea v2 reports
// them.
//
// Values come from tea.KeyPressMsg{...}.String() so they match what
// msg.String() returns at runtime.
package keys

import tea "charm.land/bubbletea/v2"

// Navigation keys
var (
	PgUp   = tea.KeyPressMsg{Code: tea.KeyPgUp}.String()   // "pgup"
	PgDown = tea.KeyPressMsg{Code: tea.KeyPgDown}.String() // "pgdown"
)

// Action keys
var (
	Enter  = tea.KeyPressMsg{Code: tea.KeyEnter}.String()  // "enter"
	Escape = tea.KeyPressMsg{Code: tea.KeyEscape}.String() // "esc"
)

// Ctrl combinations
var (
	CtrlC = (tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl}).String() // "ctrl+c"
	CtrlD = (tea.KeyPressMsg{Code: 'd', Mod: tea.ModCtrl}).String() // "ctrl+d"
	CtrlL = (tea.KeyPressMsg{Code: 'l', Mod: tea.ModCtrl}).String() // "ctrl+l"
	CtrlY = (tea.KeyPressMsg{Code: 'y', Mod: tea.ModCtrl}).String() // "ctrl+y"
)

// Help is the one-line binding summary shown in the console status bar.
var Help = CtrlY + " copy id · " + CtrlL + " clear · " + CtrlC + " quit"
