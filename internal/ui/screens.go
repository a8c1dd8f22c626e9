package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jroimartin/gocui"

	"oasplay/internal/httpclient"
	"oasplay/internal/model"
	"oasplay/internal/session"
)

type handler = func(*gocui.Gui, *gocui.View) error

func (a *App) setCurrent(name string) error {
	if cv := a.g.CurrentView(); cv != nil && cv.Name() == name {
		return nil
	}
	_, err := a.g.SetCurrentView(name)
	return err
}

// scrollTo keeps row visible and puts the cursor on it.
func scrollTo(v *gocui.View, row int) {
	_, h := v.Size()
	oy := 0
	if h > 0 && row >= h {
		oy = row - h + 1
	}
	_ = v.SetOrigin(0, oy)
	_ = v.SetCursor(0, row-oy)
}

// --- endpoints ---

func (a *App) recomputeFilter() {
	a.filtered = filterOperations(a.ops, a.filter)
	if a.selected >= len(a.filtered) {
		a.selected = len(a.filtered) - 1
	}
	if a.selected < 0 {
		a.selected = 0
	}
}

func (a *App) selectedRef() (model.OperationRef, bool) {
	if len(a.filtered) == 0 {
		return model.OperationRef{}, false
	}
	return a.ops[a.filtered[a.selected]], true
}

func (a *App) layoutEndpoints(maxX, maxY int) error {
	a.clearMainViews([]string{"filter", "endpoints", "details"})
	split := maxX / 2

	fv, err := a.g.SetView("filter", 0, 3, split-1, 5)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		fv.Title = "Filter"
	}
	fv.Clear()
	fmt.Fprint(fv, a.filter)

	ev, err := a.g.SetView("endpoints", 0, 6, split-1, maxY-3)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		ev.Highlight = true
		ev.SelBgColor = gocui.ColorGreen
		ev.SelFgColor = gocui.ColorBlack
	}
	ev.Title = fmt.Sprintf("Endpoints (%d/%d)", len(a.filtered), len(a.ops))
	ev.Clear()
	st := a.sess.State()
	for i, idx := range a.filtered {
		ref := a.ops[idx]
		num := "  "
		if i < 5 {
			num = fmt.Sprintf("%d ", i+1)
		}
		mark := ""
		if st.Op(ref.Key).InFlight {
			mark = " …"
		}
		fmt.Fprintf(ev, "%s%s %s  %s%s\n", num, a.pal.Method(ref.Key.Method), ref.Key.Path,
			firstNonEmpty(ref.Operation.Summary, ref.Operation.OperationID), mark)
	}
	if len(a.filtered) == 0 {
		fmt.Fprintln(ev, "(no matching operations)")
	}
	scrollTo(ev, a.selected)

	dv, err := a.g.SetView("details", split, 3, maxX-1, maxY-3)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		dv.Title = "Details"
		dv.Wrap = true
	}
	dv.Clear()
	if ref, ok := a.selectedRef(); ok {
		if ref.Key != a.detailsKey {
			a.detailsKey = ref.Key
			_ = dv.SetOrigin(0, 0)
		}
		fmt.Fprint(dv, operationDetails(a.pal, st.Doc, ref, st.Op(ref.Key)))
	}

	return a.setCurrent("endpoints")
}

func (a *App) moveSel(delta int) handler {
	return func(*gocui.Gui, *gocui.View) error {
		next := a.selected + delta
		if next < 0 || next >= len(a.filtered) {
			return nil
		}
		a.selected = next
		return nil
	}
}

func (a *App) appendFilterRune(r rune) handler {
	return func(*gocui.Gui, *gocui.View) error {
		a.filter += string(r)
		a.selected = 0
		a.recomputeFilter()
		return nil
	}
}

func (a *App) filterBackspace(*gocui.Gui, *gocui.View) error {
	if a.filter == "" {
		return nil
	}
	r := []rune(a.filter)
	a.filter = string(r[:len(r)-1])
	a.recomputeFilter()
	return nil
}

func (a *App) selectEndpointByNumber(n int) handler {
	return func(g *gocui.Gui, v *gocui.View) error {
		if n-1 >= len(a.filtered) {
			return nil
		}
		a.selected = n - 1
		return a.openBuilder(g, v)
	}
}

func (a *App) openBuilder(*gocui.Gui, *gocui.View) error {
	ref, ok := a.selectedRef()
	if !ok {
		return nil
	}
	a.active = ref.Key
	a.pane = 0
	a.scr = screenBuilder
	a.clearNotice()
	return nil
}

func (a *App) tabPane(*gocui.Gui, *gocui.View) error {
	if a.headersOpen || a.editing {
		return nil
	}
	switch a.scr {
	case screenEndpoints:
		if ref, ok := a.selectedRef(); ok {
			a.sess.ToggleExpanded(ref.Key)
		}
	case screenBuilder:
		if n := len(a.currentPanes()); n > 0 {
			a.pane = (a.pane + 1) % n
		}
	}
	return nil
}

// --- builder ---

func (a *App) currentPanes() []paneDef {
	op, ok := a.activeOperation()
	if !ok {
		return nil
	}
	return visiblePanes(op)
}

func (a *App) layoutSelected(maxX int) error {
	v, err := a.g.SetView("selected", 0, 3, maxX-1, 5)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Operation"
	}
	v.Clear()
	st := a.sess.State().Op(a.active)
	status := ""
	switch {
	case st.InFlight:
		status = "running…"
	case st.Result != nil:
		status = resultStatus(a.pal, st.Result)
	}
	fmt.Fprintf(v, "%s %s   %s", a.pal.Method(a.active.Method), a.pal.Path(a.active.Path), status)
	return nil
}

func resultStatus(p httpclient.Palette, r httpclient.ExecutionResult) string {
	switch r := r.(type) {
	case httpclient.Success:
		return p.Status(r.Status, r.StatusText)
	case httpclient.Failure:
		return r.Status
	}
	return ""
}

func (a *App) layoutBuilder(maxX, maxY int) error {
	op, ok := a.activeOperation()
	if !ok {
		// the document was reloaded without this operation
		a.scr = screenEndpoints
		return a.layoutEndpoints(maxX, maxY)
	}
	panes := visiblePanes(op)
	if a.pane >= len(panes) {
		a.pane = 0
	}

	keep := []string{"selected"}
	for _, p := range panes {
		keep = append(keep, p.name)
	}
	if a.editing {
		keep = append(keep, "edit")
	}
	a.clearMainViews(keep)

	if err := a.layoutSelected(maxX); err != nil {
		return err
	}

	st := a.sess.State()
	opState := st.Op(a.active)
	top, bottom := 6, maxY-3
	height := (bottom - top) / len(panes)
	if height < 3 {
		height = 3
	}
	for i, p := range panes {
		y0 := top + i*height
		y1 := y0 + height - 1
		if i == len(panes)-1 {
			y1 = bottom
		}
		v, err := a.g.SetView(p.name, 0, y0, maxX-1, y1)
		if err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Title = p.title
		}
		v.Highlight = i == a.pane && !a.editing
		v.SelBgColor = gocui.ColorGreen
		v.SelFgColor = gocui.ColorBlack
		v.Clear()
		if p.name == "body" {
			fmt.Fprint(v, bodyPaneText(opState))
			continue
		}
		for _, param := range paneParams(op, p) {
			value, set := opState.Params[param.Name]
			line := paramLine(param.Name, param.Required, value)
			if !set {
				if hint := paramHint(st.Doc, param); hint != "" {
					line += "   (" + hint + ")"
				}
			}
			fmt.Fprintln(v, line)
		}
	}

	if a.editing {
		return a.layoutEdit(maxX, maxY)
	}
	return a.setCurrent(panes[a.pane].name)
}

func bodyPaneText(st session.OperationState) string {
	if !st.HasBody {
		return "(not set, enter: edit in $EDITOR)"
	}
	b, err := json.MarshalIndent(st.Body, "", "  ")
	if err != nil {
		return fmt.Sprint(st.Body)
	}
	return string(b)
}

func (a *App) moveRow(delta int) handler {
	return func(g *gocui.Gui, v *gocui.View) error {
		if v == nil {
			return nil
		}
		lines := viewLines(v)
		_, cy := v.Cursor()
		_, oy := v.Origin()
		row := oy + cy + delta
		if row < 0 || row >= len(lines) {
			return nil
		}
		_, h := v.Size()
		switch {
		case row < oy:
			oy = row
		case h > 0 && row >= oy+h:
			oy = row - h + 1
		}
		_ = v.SetOrigin(0, oy)
		_ = v.SetCursor(0, row-oy)
		return nil
	}
}

func currentRow(v *gocui.View) string {
	lines := viewLines(v)
	_, cy := v.Cursor()
	_, oy := v.Origin()
	row := oy + cy
	if row < 0 || row >= len(lines) {
		return ""
	}
	return lines[row]
}

func (a *App) beginEdit(g *gocui.Gui, v *gocui.View) error {
	if v == nil || a.editing {
		return nil
	}
	name := parseParamLine(currentRow(v))
	if name == "" {
		return nil
	}
	a.editing = true
	a.editTarget = name
	a.editValue = a.sess.State().Op(a.active).Params[name]
	return nil
}

func (a *App) layoutEdit(maxX, maxY int) error {
	w := maxX * 2 / 3
	x0 := (maxX - w) / 2
	y0 := maxY/2 - 1
	v, err := a.g.SetView("edit", x0, y0, x0+w, y0+2)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Edit " + a.editTarget + " (enter: save, esc: cancel)"
		v.Editable = true
		v.Editor = singleLineEditor{}
		fmt.Fprint(v, a.editValue)
		_ = v.SetCursor(len(a.editValue), 0)
	}
	if _, err := a.g.SetViewOnTop("edit"); err != nil {
		return err
	}
	return a.setCurrent("edit")
}

func (a *App) confirmEdit(g *gocui.Gui, v *gocui.View) error {
	if !a.editing || v == nil {
		return nil
	}
	a.sess.SetParameterValue(a.active, a.editTarget, strings.TrimSpace(viewText(v)))
	return a.closeEdit()
}

func (a *App) closeEdit() error {
	a.editing = false
	a.editTarget = ""
	a.editValue = ""
	if _, err := a.g.View("edit"); err == nil {
		if err := a.g.DeleteView("edit"); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) resetParam(g *gocui.Gui, v *gocui.View) error {
	if v == nil {
		return nil
	}
	if v.Name() == "body" {
		a.sess.SetRequestBody(a.active, nil)
		return nil
	}
	if name := parseParamLine(currentRow(v)); name != "" {
		a.sess.ClearParameterValue(a.active, name)
	}
	return nil
}

func (a *App) editBodyInEditor(*gocui.Gui, *gocui.View) error {
	op, ok := a.activeOperation()
	if !ok {
		return nil
	}
	st := a.sess.State()
	file, err := writeTemp(bodySeed(st.Doc, op, st.Op(a.active)))
	if err != nil {
		a.Error("Cannot edit body", err.Error())
		return nil
	}
	a.suspendEditorFile = file
	return gocui.ErrQuit
}

// --- response ---

func (a *App) executeRequest(*gocui.Gui, *gocui.View) error {
	if a.headersOpen || a.editing {
		return nil
	}
	if a.scr == screenEndpoints {
		ref, ok := a.selectedRef()
		if !ok {
			return nil
		}
		a.active = ref.Key
		a.pane = 0
	}
	a.scr = screenResponse

	key := a.active
	go func() {
		_, _ = a.sess.Execute(a.ctx, key)
		a.mu.Lock()
		g := a.g
		a.mu.Unlock()
		if g != nil {
			g.Update(func(*gocui.Gui) error { return nil })
		}
	}()
	return nil
}

func (a *App) rerun(g *gocui.Gui, v *gocui.View) error {
	return a.executeRequest(g, v)
}

func (a *App) responseToEndpoints(*gocui.Gui, *gocui.View) error {
	a.scr = screenEndpoints
	return nil
}

func (a *App) layoutResponse(maxX, maxY int) error {
	a.clearMainViews([]string{"selected", "response"})
	if err := a.layoutSelected(maxX); err != nil {
		return err
	}

	v, err := a.g.SetView("response", 0, 6, maxX-1, maxY-3)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Response"
		v.Wrap = true
	}
	v.Clear()

	snap := a.sess.State()
	st := snap.Op(a.active)
	if st.Seq != a.respSeq {
		a.respSeq = st.Seq
		_ = v.SetOrigin(0, 0)
	}
	switch {
	case st.InFlight:
		fmt.Fprintln(v, "Running…")
	case st.Result == nil:
		fmt.Fprintln(v, "(no response yet, ctrl+r: run)")
	default:
		fmt.Fprintln(v, a.pal.Result(st.Result))
	}

	if req, err := a.sess.Request(snap, a.active); err == nil {
		fmt.Fprintf(v, "\n%s\n", httpclient.Snippet(req))
	}
	return a.setCurrent("response")
}

// --- custom headers ---

func (a *App) openHeaders(*gocui.Gui, *gocui.View) error {
	if a.editing {
		return nil
	}
	a.headersOpen = true
	a.clearNotice()
	return nil
}

func (a *App) layoutHeaders(maxX, maxY int) error {
	a.clearMainViews([]string{"headers-edit"})
	w, h := maxX*2/3, maxY/2
	x0, y0 := (maxX-w)/2, (maxY-h)/2
	v, err := a.g.SetView("headers-edit", x0, y0, x0+w, y0+h)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Custom Headers (JSON)"
		v.Editable = true
		v.Editor = gocui.DefaultEditor
		fmt.Fprint(v, a.sess.State().CustomHeaders)
	}
	return a.setCurrent("headers-edit")
}

func (a *App) saveHeaders(g *gocui.Gui, v *gocui.View) error {
	if v == nil {
		return nil
	}
	text := strings.TrimSpace(viewText(v))
	if _, err := session.ParseHeaders(text); err != nil {
		a.Error("Invalid custom headers", err.Error())
		return nil
	}
	a.sess.SetCustomHeaders(text)
	a.closeHeaders()
	a.Info("Custom headers saved", "")
	return nil
}

func (a *App) closeHeaders() {
	a.headersOpen = false
	if _, err := a.g.View("headers-edit"); err == nil {
		_ = a.g.DeleteView("headers-edit")
	}
}
