package explorer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kadirbelkuyu/fbadapter/internal/adapter"
)

const helpLine = "':' to run SQL • 'r' to refresh • 'q' to exit"

// Run opens the table explorer on db and blocks until the user quits.
// label names the database in the status pane.
func Run(ctx context.Context, db *adapter.Adapter, label string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := newBrowser(db)

	var tables []string

	app := tview.NewApplication()
	list := tview.NewList().ShowSecondaryText(false)
	dataTable := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	meta := tview.NewTextView().SetDynamicColors(true)
	pages := tview.NewPages()

	list.AddItem("Loading tables…", "", 0, nil)
	meta.SetText("Connecting to " + label + "…")

	show := func(table string) {
		go renderTable(ctx, app, b, table, dataTable, meta)
	}
	current := func() (string, bool) {
		index := list.GetCurrentItem()
		if index < 0 || index >= len(tables) {
			return "", false
		}
		return tables[index], true
	}

	list.SetChangedFunc(func(index int, main, secondary string, shortcut rune) {
		if index >= 0 && index < len(tables) {
			show(tables[index])
		}
	})

	var loadOnce sync.Once
	startLoader := func() {
		go func() {
			loaded, err := b.tables(ctx)
			if err != nil {
				queueUpdate(app, func() {
					list.Clear()
					list.AddItem("Failed to load tables", "", 0, nil)
					meta.SetText(fmt.Sprintf("[red]%v", err))
				})
				return
			}

			if len(loaded) == 0 {
				queueUpdate(app, func() {
					list.Clear()
					list.AddItem("No tables found", "", 0, nil)
					meta.SetText("No user tables in " + label)
				})
				return
			}

			queueUpdate(app, func() {
				tables = loaded
				list.Clear()
				for _, name := range tables {
					list.AddItem(name, "", 0, nil)
				}
				list.SetCurrentItem(0)
				show(tables[0])
			})
		}()
	}

	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		loadOnce.Do(startLoader)
		return false
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list.SetBorder(true).SetTitle("Tables"), 30, 1, true).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(dataTable.SetBorder(true).SetTitle("Preview"), 0, 3, false).
			AddItem(meta.SetBorder(true).SetTitle("Details"), 9, 1, false),
			0, 3, false)

	pages.AddPage("main", layout, true, true)

	app.SetRoot(pages, true).
		SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
			if name, _ := pages.GetFrontPage(); name != "main" {
				return event
			}
			if event.Key() == tcell.KeyRune {
				switch event.Rune() {
				case 'q', 'Q':
					app.Stop()
					return nil
				case 'r', 'R':
					if table, ok := current(); ok {
						show(table)
					}
					return nil
				case ':':
					showCommandModal(ctx, app, pages, list, b, dataTable, meta)
					return nil
				}
			}
			return event
		})

	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func renderTable(ctx context.Context, app *tview.Application, b *browser, table string, view *tview.Table, meta *tview.TextView) {
	queueUpdate(app, func() {
		meta.SetText(fmt.Sprintf("Loading %s …", table))
		view.Clear()
	})

	snap, err := b.preview(ctx, table)
	if err != nil {
		queueUpdate(app, func() {
			view.Clear()
			meta.SetText(fmt.Sprintf("[red]%v", err))
		})
		return
	}
	details, err := b.details(ctx, table)
	if err != nil {
		details = fmt.Sprintf("[::b]%s[-:-:-]\n[red]%v[-]\n", table, err)
	}

	queueUpdate(app, func() {
		fillGrid(view, snap)
		meta.SetText(fmt.Sprintf("%sRows: %d • preview: %d\n%s", details, snap.Total, len(snap.Rows), helpLine))
	})
}

func showCommandModal(ctx context.Context, app *tview.Application, pages *tview.Pages, list *tview.List, b *browser, view *tview.Table, meta *tview.TextView) {
	const modalName = "firebird-sql"

	input := tview.NewInputField().
		SetLabel("SQL> ").
		SetFieldWidth(80)

	info := tview.NewTextView().
		SetDynamicColors(true).
		SetText(fmt.Sprintf("SELECT queries render inside the preview (max %d rows); LIMIT/OFFSET is translated to FIRST/SKIP.\nOther statements execute immediately against this database.", previewRows))

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Run", func() {
			sqlText := strings.TrimSpace(input.GetText())
			pages.RemovePage(modalName)
			app.SetFocus(list)
			if sqlText == "" {
				return
			}
			go executeCommand(ctx, app, b, sqlText, view, meta)
		}).
		AddButton("Cancel", func() {
			pages.RemovePage(modalName)
			app.SetFocus(list)
		})

	form.SetBorder(true).SetTitle("Execute SQL")

	wrapper := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(info, 3, 1, false).
		AddItem(form, 0, 2, true)

	pages.AddPage(modalName, newModal(wrapper, 100, 12), true, true)
	app.SetFocus(input)
}

func executeCommand(ctx context.Context, app *tview.Application, b *browser, sqlText string, view *tview.Table, meta *tview.TextView) {
	snap, rows, err := b.execute(ctx, sqlText)
	if err != nil {
		queueUpdate(app, func() {
			meta.SetText(fmt.Sprintf("[red]SQL error: %v", err))
		})
		return
	}

	if !rows {
		queueUpdate(app, func() {
			meta.SetText(fmt.Sprintf("[green]Statement executed.[-:-:-]\nRows affected: %d", snap.Total))
		})
		return
	}

	queueUpdate(app, func() {
		fillGrid(view, snap)
		meta.SetText(fmt.Sprintf("[::b]Query result[-:-:-]\nRows returned: %d\nPreview limited to %d rows.", snap.Total, previewRows))
	})
}
