// Package ui is the interactive terminal front end. It renders a
// session.Session with gocui and turns key presses into session updates.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jroimartin/gocui"
	"github.com/rs/zerolog"

	"oasplay/internal/httpclient"
	"oasplay/internal/model"
	"oasplay/internal/session"
)

type screen int

const (
	screenEndpoints screen = iota
	screenBuilder
	screenResponse
)

// Reloader fetches the document text again.
type Reloader func(ctx context.Context) ([]byte, error)

type App struct {
	log    zerolog.Logger
	pal    httpclient.Palette
	sess   *session.Session
	reload Reloader
	ctx    context.Context

	// mu guards g and the footer notice, which are touched from request
	// goroutines through the Notifier methods.
	mu        sync.Mutex
	g         *gocui.Gui
	notice    string
	noticeErr bool

	scr screen

	ops      []model.OperationRef
	filter   string
	filtered []int
	selected int

	active model.OperationKey
	pane   int

	editing    bool
	editTarget string
	editValue  string

	// last rendered operation and execution, to reset scroll on change
	detailsKey model.OperationKey
	respSeq    uint64

	headersOpen bool

	suspendEditorFile string
}

// NewApp creates the UI. The session is attached with SetSession once it
// exists, since the App is also the session's Notifier.
func NewApp(log zerolog.Logger, pal httpclient.Palette) *App {
	return &App{log: log, pal: pal, scr: screenEndpoints}
}

func (a *App) SetSession(s *session.Session) {
	a.sess = s
	a.refreshOperations()
}

func (a *App) SetReloader(r Reloader) {
	a.reload = r
}

// Info implements session.Notifier.
func (a *App) Info(title, description string) {
	a.setNotice(joinNotice(title, description), false)
}

// Error implements session.Notifier.
func (a *App) Error(title, description string) {
	a.log.Error().Str("detail", description).Msg(title)
	a.setNotice(joinNotice(title, description), true)
}

func joinNotice(title, description string) string {
	if description == "" {
		return title
	}
	return title + ": " + description
}

func (a *App) setNotice(msg string, isErr bool) {
	a.mu.Lock()
	a.notice = msg
	a.noticeErr = isErr
	g := a.g
	a.mu.Unlock()

	if g != nil {
		g.Update(func(*gocui.Gui) error {
			a.renderFooter()
			return nil
		})
	}
}

func (a *App) clearNotice() {
	a.mu.Lock()
	a.notice = ""
	a.mu.Unlock()
}

// Run drives the UI until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.sess == nil {
		return errors.New("ui: no session")
	}
	a.ctx = ctx

	// We sometimes need to temporarily drop out of the TUI to run an external
	// process ($EDITOR for JSON body editing). gocui doesn't expose a native
	// suspend/resume API, so we exit the main loop, run the external command, and
	// then re-create the GUI.
	for {
		g, err := gocui.NewGui(gocui.OutputNormal)
		if err != nil {
			return err
		}
		g.BgColor = gocui.ColorBlack
		g.FgColor = gocui.ColorWhite
		g.Cursor = true
		g.InputEsc = true
		g.SetManagerFunc(a.layout)

		a.mu.Lock()
		a.g = g
		a.mu.Unlock()

		if err := a.bindKeys(); err != nil {
			g.Close()
			return err
		}

		stop := context.AfterFunc(ctx, func() {
			g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
		})
		err = g.MainLoop()
		stop()

		a.mu.Lock()
		a.g = nil
		a.mu.Unlock()
		g.Close()

		if a.suspendEditorFile != "" {
			file := a.suspendEditorFile
			a.suspendEditorFile = ""
			a.applyEditedBody(file)
			continue
		}

		if err != nil && !errors.Is(err, gocui.ErrQuit) {
			return err
		}
		return nil
	}
}

func (a *App) applyEditedBody(file string) {
	text, err := runExternalEditor(file)
	if err != nil {
		a.Error("Editor failed", err.Error())
		return
	}
	if !a.sess.EditBody(a.active, text) {
		a.Error("Body not updated", "the edited text is not valid JSON")
		return
	}
	a.clearNotice()
}

func (a *App) refreshOperations() {
	a.ops = model.Operations(a.sess.State().Doc)
	a.selected = 0
	a.recomputeFilter()
}

func (a *App) activeOperation() (*model.Operation, bool) {
	return a.sess.State().Doc.Operation(a.active)
}

func (a *App) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView("header", 0, 0, maxX-1, 2); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
	}
	a.renderHeader()

	if v, err := g.SetView("footer", 0, maxY-2, maxX-1, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
	}
	a.renderFooter()

	if a.headersOpen {
		return a.layoutHeaders(maxX, maxY)
	}

	switch a.scr {
	case screenEndpoints:
		return a.layoutEndpoints(maxX, maxY)
	case screenBuilder:
		return a.layoutBuilder(maxX, maxY)
	case screenResponse:
		return a.layoutResponse(maxX, maxY)
	default:
		return nil
	}
}

func (a *App) renderHeader() {
	v, err := a.g.View("header")
	if err != nil {
		return
	}
	v.Clear()
	doc := a.sess.State().Doc
	title := "oasplay"
	if doc != nil && doc.Info.Title != "" {
		title = fmt.Sprintf("oasplay  -  %s v%s", doc.Info.Title, doc.Info.Version)
	}
	base := a.sess.BaseURL()
	if base == "" {
		base = "(no base URL)"
	}
	fmt.Fprintf(v, "%s   %s\n", title, base)
}

func (a *App) renderFooter() {
	v, err := a.g.View("footer")
	if err != nil {
		return
	}
	v.Clear()

	a.mu.Lock()
	msg, isErr := a.notice, a.noticeErr
	a.mu.Unlock()

	if msg != "" {
		if isErr {
			v.FgColor = gocui.ColorRed
		} else {
			v.FgColor = gocui.ColorGreen
		}
		fmt.Fprint(v, msg)
		return
	}

	v.FgColor = gocui.ColorWhite
	switch {
	case a.headersOpen:
		msg = `custom headers as JSON, e.g. {"Authorization": "Bearer ..."}   ctrl+s: save   esc: cancel`
	case a.scr == screenEndpoints:
		msg = "type: filter   1-5: quick select   enter: open   tab: schemas   F2: headers   F5: reload   ctrl+c: quit"
	case a.scr == screenBuilder:
		msg = "tab: switch pane   enter: edit   d: reset   ctrl+r: run   F2: headers   esc: back"
		if panes := a.currentPanes(); a.pane < len(panes) && panes[a.pane].name == "body" {
			msg = "tab: switch pane   enter: edit json ($EDITOR)   d: clear body   ctrl+r: run   F2: headers   esc: back"
		}
	case a.scr == screenResponse:
		msg = "up/down: scroll   r: rerun   enter: back to endpoints   F2: headers   esc: back"
	}
	fmt.Fprint(v, msg)
}

func (a *App) clearMainViews(keep []string) {
	keepSet := map[string]bool{"header": true, "footer": true}
	for _, k := range keep {
		keepSet[k] = true
	}

	names := []string{"filter", "endpoints", "details", "selected", "edit", "response", "headers-edit"}
	for _, p := range builderPanes {
		names = append(names, p.name)
	}
	for _, n := range names {
		if keepSet[n] {
			continue
		}
		if _, err := a.g.View(n); err == nil {
			_ = a.g.DeleteView(n)
		}
	}
}

func (a *App) bindKeys() error {
	type binding struct {
		view    string
		key     interface{}
		handler handler
	}

	bindings := []binding{
		{"", gocui.KeyCtrlC, a.quit},
		{"", 'q', a.quit},
		{"", gocui.KeyEsc, a.back},
		{"", gocui.KeyF2, a.openHeaders},
		{"", gocui.KeyF5, a.reloadSpec},
		{"", gocui.KeyTab, a.tabPane},
		{"", gocui.KeyCtrlR, a.executeRequest},

		{"endpoints", gocui.KeyArrowDown, a.moveSel(1)},
		{"endpoints", gocui.KeyArrowUp, a.moveSel(-1)},
		{"endpoints", gocui.KeyEnter, a.openBuilder},
		{"endpoints", gocui.KeyBackspace, a.filterBackspace},
		{"endpoints", gocui.KeyBackspace2, a.filterBackspace},
		{"endpoints", gocui.KeySpace, a.appendFilterRune(' ')},

		{"edit", gocui.KeyEnter, a.confirmEdit},
		{"headers-edit", gocui.KeyCtrlS, a.saveHeaders},

		{"response", gocui.KeyArrowDown, a.scrollView(1)},
		{"response", gocui.KeyArrowUp, a.scrollView(-1)},
		{"response", 'r', a.rerun},
		{"response", gocui.KeyEnter, a.responseToEndpoints},
		{"details", gocui.KeyArrowDown, a.scrollView(1)},
		{"details", gocui.KeyArrowUp, a.scrollView(-1)},
	}

	for _, p := range builderPanes {
		bindings = append(bindings,
			binding{p.name, gocui.KeyArrowDown, a.moveRow(1)},
			binding{p.name, gocui.KeyArrowUp, a.moveRow(-1)},
			binding{p.name, 'd', a.resetParam},
		)
		if p.name == "body" {
			bindings = append(bindings, binding{p.name, gocui.KeyEnter, a.editBodyInEditor})
		} else {
			bindings = append(bindings, binding{p.name, gocui.KeyEnter, a.beginEdit})
		}
	}

	// number shortcuts 1-5 for quick endpoint selection
	for i := 1; i <= 5; i++ {
		bindings = append(bindings, binding{"endpoints", rune('0' + i), a.selectEndpointByNumber(i)})
	}
	// typing in the endpoint list edits the filter (printable ASCII)
	for r := rune(33); r <= rune(126); r++ {
		if r >= '1' && r <= '5' {
			continue
		}
		bindings = append(bindings, binding{"endpoints", r, a.appendFilterRune(r)})
	}

	for _, b := range bindings {
		if err := a.g.SetKeybinding(b.view, b.key, gocui.ModNone, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) quit(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }

func (a *App) back(*gocui.Gui, *gocui.View) error {
	if a.headersOpen {
		a.closeHeaders()
		return nil
	}
	if a.editing {
		return a.closeEdit()
	}
	switch a.scr {
	case screenResponse:
		a.scr = screenBuilder
	case screenBuilder:
		a.scr = screenEndpoints
	}
	a.clearNotice()
	return nil
}

func (a *App) reloadSpec(*gocui.Gui, *gocui.View) error {
	if a.reload == nil || a.editing || a.headersOpen {
		return nil
	}
	text, err := a.reload(a.ctx)
	if err != nil {
		a.Error("Reload failed", err.Error())
		return nil
	}
	if err := a.sess.Load(text); err != nil {
		// Load already notified; the previous document stays usable.
		return nil
	}
	a.filter = ""
	a.refreshOperations()
	a.scr = screenEndpoints
	return nil
}

func (a *App) scrollView(delta int) handler {
	return func(_ *gocui.Gui, v *gocui.View) error {
		if v == nil {
			return nil
		}
		ox, oy := v.Origin()
		if delta > 0 {
			_ = v.SetOrigin(ox, oy+1)
		} else if oy > 0 {
			_ = v.SetOrigin(ox, oy-1)
		}
		return nil
	}
}

func viewText(v *gocui.View) string {
	b := v.Buffer()
	// gocui includes a trailing newline
	return strings.TrimSuffix(b, "\n")
}

func viewLines(v *gocui.View) []string {
	buf := strings.TrimSuffix(v.Buffer(), "\n")
	if buf == "" {
		return nil
	}
	return strings.Split(buf, "\n")
}
