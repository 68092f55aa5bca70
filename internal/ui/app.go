package ui

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/dastanaron/browsershell/internal/models"
	"github.com/dastanaron/browsershell/internal/service"
	"github.com/dastanaron/browsershell/internal/textzoom"
)

const (
	ModeNormal = 1
	ModeSearch = 2
	ModeModal  = 3
	ModeForm   = 4
)

const (
	favoriteMark = "★"
	allBookmarks = "All Bookmarks"
)

// App is the terminal bookmark browser. The list shows ranked matches for the
// search field within the selected folder, favorites first when the field is
// empty.
type App struct {
	app     *tview.Application
	folders *tview.List
	list    *tview.List
	detail  *tview.TextView
	search  *tview.InputField
	status  *tview.TextView
	pages   *tview.Pages
	mode    uint8

	items   []models.Bookmark
	current *models.Bookmark

	folderItems    []folderItem
	selectedFolder *int
	focusOnFolders bool

	bookmarkSvc  *service.BookmarkService
	folderSvc    *service.FolderService
	favoritesSvc *service.FavoritesService
	zoom         *textzoom.Coordinator
}

// folderItem is one row of the folder pane. A nil ID stands for all bookmarks.
type folderItem struct {
	ID    *int
	Name  string
	Level int
}

// NewApp creates a new application instance. zoom may be nil.
func NewApp(bookmarkSvc *service.BookmarkService, folderSvc *service.FolderService, favoritesSvc *service.FavoritesService, zoom *textzoom.Coordinator) *App {
	return &App{
		app:          tview.NewApplication(),
		folders:      tview.NewList().ShowSecondaryText(false),
		list:         tview.NewList(),
		detail:       tview.NewTextView().SetDynamicColors(true).SetWrap(true),
		search:       tview.NewInputField().SetLabel("Search: "),
		status:       tview.NewTextView().SetDynamicColors(true),
		pages:        tview.NewPages(),
		mode:         ModeNormal,
		bookmarkSvc:  bookmarkSvc,
		folderSvc:    folderSvc,
		favoritesSvc: favoritesSvc,
		zoom:         zoom,
	}
}

// Run starts the application
func (a *App) Run() error {
	a.folders.SetBorder(true).SetTitle("Folders")
	a.list.SetBorder(true).SetTitle("Bookmarks")
	a.detail.SetBorder(true).SetTitle("Details")

	cols := tview.NewFlex().
		AddItem(a.folders, 0, 1, false).
		AddItem(a.list, 0, 3, true).
		AddItem(a.detail, 0, 2, false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.search, 1, 0, false).
		AddItem(cols, 0, 1, true).
		AddItem(a.status, 1, 0, false)

	a.pages.AddPage("main", main, true, true)

	if err := a.reloadFolders(); err != nil {
		return err
	}
	if err := a.reload(); err != nil {
		return err
	}

	a.search.SetChangedFunc(func(string) { a.refresh() })
	a.search.SetDoneFunc(a.onSearchDone)
	a.list.SetChangedFunc(a.onSelect)
	a.folders.SetChangedFunc(func(index int, _, _ string, _ rune) { a.onFolderHighlight(index) })

	a.app.SetRoot(a.pages, true)
	a.app.SetInputCapture(a.globalInput)
	a.app.SetFocus(a.list)
	return a.app.Run()
}

// reload runs the current query again and refills the list.
func (a *App) reload() error {
	items, err := a.bookmarkSvc.SearchInFolder(strings.TrimSpace(a.search.GetText()), a.selectedFolder)
	if err != nil {
		return fmt.Errorf("failed to load bookmarks: %w", err)
	}
	a.items = items
	a.fillList()
	return nil
}

func (a *App) refresh() {
	if err := a.reload(); err != nil {
		a.showError(err.Error())
	}
}

func (a *App) reloadFolders() error {
	folders, err := a.folderSvc.ListAll()
	if err != nil {
		return fmt.Errorf("failed to load folders: %w", err)
	}

	selected := a.folders.GetCurrentItem()
	a.folderItems = folderTree(folders)
	a.folders.Clear()
	for _, item := range a.folderItems {
		a.folders.AddItem(folderLabel(item), "", 0, nil)
	}
	if selected < len(a.folderItems) {
		a.folders.SetCurrentItem(selected)
	}

	// The selected folder may be gone after a delete.
	if a.selectedFolder != nil && folderIndex(a.folderItems, *a.selectedFolder) < 0 {
		a.selectedFolder = nil
	}
	a.updateFolderTitle()
	return nil
}

func (a *App) refreshAll() {
	if err := a.reloadFolders(); err != nil {
		a.showError(err.Error())
		return
	}
	a.refresh()
}

func (a *App) updateFolderTitle() {
	name := allBookmarks
	if a.selectedFolder != nil {
		if i := folderIndex(a.folderItems, *a.selectedFolder); i >= 0 {
			name = a.folderItems[i].Name
		}
	}
	a.list.SetTitle("Bookmarks: " + tview.Escape(name))
}

func (a *App) selectFolder(index int) {
	if index < 0 || index >= len(a.folderItems) {
		return
	}
	a.selectedFolder = a.folderItems[index].ID
	a.updateFolderTitle()
	a.refresh()
}

func (a *App) onFolderHighlight(index int) {
	if !a.focusOnFolders || index < 0 || index >= len(a.folderItems) {
		return
	}
	item := a.folderItems[index]
	content, err := a.folderSvc.GetFolderContent(item.ID)
	if err != nil {
		a.detail.SetText(tview.Escape(err.Error()))
		return
	}
	a.detail.SetText(folderDetailsText(item.Name, content))
}

func (a *App) highlightedFolder() (folderItem, bool) {
	index := a.folders.GetCurrentItem()
	if index < 0 || index >= len(a.folderItems) {
		return folderItem{}, false
	}
	return a.folderItems[index], true
}

func (a *App) toggleFocus() {
	a.focusOnFolders = !a.focusOnFolders
	if a.focusOnFolders {
		a.app.SetFocus(a.folders)
		a.onFolderHighlight(a.folders.GetCurrentItem())
	} else {
		a.app.SetFocus(a.list)
		a.onSelect(a.list.GetCurrentItem(), "", "", 0)
	}
	a.updateStatus()
}

func (a *App) fillList() {
	selected := a.list.GetCurrentItem()
	a.list.Clear()
	for _, b := range a.items {
		a.list.AddItem(listText(b), b.URL, 0, nil)
	}

	switch {
	case len(a.items) == 0:
		a.current = nil
	case selected >= len(a.items):
		a.list.SetCurrentItem(len(a.items) - 1)
	default:
		a.list.SetCurrentItem(selected)
	}
	a.onSelect(a.list.GetCurrentItem(), "", "", 0)
	a.updateStatus()
}

func (a *App) updateStatus() {
	favorites := 0
	for _, b := range a.items {
		if b.IsFavorite {
			favorites++
		}
	}

	help := "[yellow]/[-] search  [yellow]Tab[-] folders  [yellow]Enter[-] open  [yellow]a[-] add  [yellow]e[-] edit  [yellow]f[-] favorite  [yellow]d[-] delete  [yellow]q[-] quit"
	switch {
	case a.mode == ModeSearch:
		help = "[yellow]Enter[-] done  [yellow]Esc[-] clear"
	case a.mode == ModeForm:
		help = "[yellow]Esc[-] cancel"
	case a.focusOnFolders:
		help = "[yellow]Tab[-] bookmarks  [yellow]Enter[-] select  [yellow]a[-] add  [yellow]e[-] rename  [yellow]d[-] delete  [yellow]q[-] quit"
	}
	a.status.SetText(fmt.Sprintf("%d bookmarks, %d favorites | %s", len(a.items), favorites, help))
}

func (a *App) onSelect(index int, _, _ string, _ rune) {
	if index < 0 || index >= len(a.items) {
		a.current = nil
		a.detail.SetText("")
		return
	}
	a.current = &a.items[index]
	a.detail.SetText(detailsText(*a.current, a.zoomLabel(a.current.URL)))
}

func (a *App) zoomLabel(rawURL string) string {
	if a.zoom == nil {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	label, ok := a.zoom.MenuEntry(u.Hostname())
	if !ok {
		return ""
	}
	return label
}

func (a *App) setMode(m uint8) {
	a.mode = m
	switch m {
	case ModeSearch:
		a.app.SetFocus(a.search)
	case ModeNormal:
		if a.focusOnFolders {
			a.app.SetFocus(a.folders)
		} else {
			a.app.SetFocus(a.list)
		}
	}
	a.updateStatus()
}

func (a *App) onSearchDone(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		a.setMode(ModeNormal)
	case tcell.KeyEscape:
		a.search.SetText("")
		a.setMode(ModeNormal)
	}
}

func (a *App) globalInput(event *tcell.EventKey) *tcell.EventKey {
	if a.mode == ModeForm && event.Key() == tcell.KeyEscape {
		a.closeForm()
		return nil
	}
	if a.mode != ModeNormal {
		return event
	}
	if event.Key() == tcell.KeyTab {
		a.toggleFocus()
		return nil
	}
	if a.focusOnFolders {
		return a.folderInput(event)
	}

	switch event.Key() {
	case tcell.KeyEnter:
		a.openCurrent()
		return nil
	case tcell.KeyCtrlC:
		a.app.Stop()
		return nil
	}

	switch event.Rune() {
	case '/':
		a.setMode(ModeSearch)
		return nil
	case 'q':
		a.app.Stop()
		return nil
	case 'o':
		a.openCurrent()
		return nil
	case 'a':
		b := models.Bookmark{}
		if a.selectedFolder != nil {
			id := *a.selectedFolder
			b.FolderID = &id
		}
		a.showForm(&b, false)
		return nil
	case 'e':
		a.editCurrent()
		return nil
	case 'f':
		a.toggleFavorite()
		return nil
	case 'd':
		a.deleteCurrent()
		return nil
	case 'r':
		a.refreshAll()
		return nil
	}
	return event
}

func (a *App) folderInput(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEnter:
		a.selectFolder(a.folders.GetCurrentItem())
		return nil
	case tcell.KeyCtrlC:
		a.app.Stop()
		return nil
	}

	switch event.Rune() {
	case '/':
		a.setMode(ModeSearch)
		return nil
	case 'q':
		a.app.Stop()
		return nil
	case 'a':
		f := models.Folder{}
		if item, ok := a.highlightedFolder(); ok && item.ID != nil {
			id := *item.ID
			f.ParentID = &id
		}
		a.showFolderForm(&f, false)
		return nil
	case 'e':
		a.editFolder()
		return nil
	case 'd':
		a.deleteFolder()
		return nil
	case 'r':
		a.refreshAll()
		return nil
	}
	return event
}

func (a *App) openCurrent() {
	if a.current == nil || a.current.URL == "" {
		return
	}
	if err := openURL(a.current.URL); err != nil {
		a.showError(fmt.Sprintf("Failed to open %s: %v", a.current.URL, err))
	}
}

func (a *App) toggleFavorite() {
	if a.current == nil {
		return
	}
	if _, err := a.favoritesSvc.Toggle(a.current.ID); err != nil {
		a.showError(fmt.Sprintf("Failed to update favorites: %v", err))
		return
	}
	a.refresh()
}

func (a *App) deleteCurrent() {
	if a.current == nil {
		return
	}
	b := *a.current
	a.showConfirm(fmt.Sprintf("Delete bookmark %q?", b.Title), func() {
		if err := a.bookmarkSvc.Delete(b.ID); err != nil {
			a.showError(fmt.Sprintf("Failed to delete bookmark: %v", err))
			return
		}
		a.refresh()
	})
}

func (a *App) editCurrent() {
	if a.current == nil {
		return
	}
	b, err := a.bookmarkSvc.GetByID(a.current.ID)
	if err == nil && b == nil {
		err = fmt.Errorf("bookmark %d no longer exists", a.current.ID)
	}
	if err != nil {
		a.showError(fmt.Sprintf("Failed to load bookmark: %v", err))
		return
	}
	a.showForm(b, true)
}

func (a *App) editFolder() {
	item, ok := a.highlightedFolder()
	if !ok || item.ID == nil {
		return
	}
	f, err := a.folderSvc.GetByID(*item.ID)
	if err == nil && f == nil {
		err = fmt.Errorf("folder %q no longer exists", item.Name)
	}
	if err != nil {
		a.showError(fmt.Sprintf("Failed to load folder: %v", err))
		return
	}
	a.showFolderForm(f, true)
}

func (a *App) deleteFolder() {
	item, ok := a.highlightedFolder()
	if !ok || item.ID == nil {
		return
	}
	id := *item.ID
	a.showConfirm(fmt.Sprintf("Delete folder %q with its subfolders and bookmarks?", item.Name), func() {
		if err := a.folderSvc.Delete(id); err != nil {
			a.showError(fmt.Sprintf("Failed to delete folder: %v", err))
			return
		}
		a.refreshAll()
	})
}

// folderChoices lists the dropdown options for picking a folder. The first
// option is no folder. Folders in skip's subtree are left out.
func folderChoices(items []folderItem, skip *int) ([]string, []*int) {
	options := []string{"None"}
	ids := []*int{nil}

	skipLevel := -1
	for _, item := range items {
		if item.ID == nil {
			continue
		}
		if skipLevel >= 0 {
			if item.Level > skipLevel {
				continue
			}
			skipLevel = -1
		}
		if skip != nil && *item.ID == *skip {
			skipLevel = item.Level
			continue
		}
		options = append(options, folderLabel(item))
		ids = append(ids, item.ID)
	}
	return options, ids
}

func choiceIndex(ids []*int, id *int) int {
	if id == nil {
		return 0
	}
	for i, candidate := range ids {
		if candidate != nil && *candidate == *id {
			return i
		}
	}
	return 0
}

func validateBookmark(b *models.Bookmark) error {
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(b.URL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("URL %q is not absolute", b.URL)
	}
	return nil
}

func (a *App) showForm(b *models.Bookmark, edit bool) {
	options, ids := folderChoices(a.folderItems, nil)

	form := tview.NewForm()
	form.AddInputField("Title", b.Title, 60, nil, func(t string) { b.Title = t })
	form.AddInputField("URL", b.URL, 60, nil, func(t string) { b.URL = t })
	form.AddInputField("Description", b.Description, 60, nil, func(t string) { b.Description = t })
	form.AddDropDown("Folder", options, choiceIndex(ids, b.FolderID), func(_ string, index int) {
		if index >= 0 && index < len(ids) {
			b.FolderID = ids[index]
		}
	})
	form.AddButton("Save", func() {
		if err := validateBookmark(b); err != nil {
			a.showFormError(err.Error())
			return
		}
		if !edit {
			existing, err := a.bookmarkSvc.GetByURL(b.URL)
			if err != nil {
				a.showFormError(fmt.Sprintf("Failed to save bookmark: %v", err))
				return
			}
			if existing != nil {
				a.showFormError(fmt.Sprintf("%s is already bookmarked as %q", b.URL, existing.Title))
				return
			}
		}

		save := a.bookmarkSvc.Create
		if edit {
			save = a.bookmarkSvc.Update
		}
		if err := save(b); err != nil {
			a.showFormError(fmt.Sprintf("Failed to save bookmark: %v", err))
			return
		}
		a.closeForm()
		a.refresh()
	})
	form.AddButton("Cancel", a.closeForm)

	title := "New Bookmark"
	if edit {
		title = "Edit Bookmark"
	}
	a.openForm(form, title)
}

func (a *App) showFolderForm(f *models.Folder, edit bool) {
	var skip *int
	if edit {
		skip = &f.ID
	}
	options, ids := folderChoices(a.folderItems, skip)

	form := tview.NewForm()
	form.AddInputField("Name", f.Name, 60, nil, func(t string) { f.Name = t })
	form.AddDropDown("Parent Folder", options, choiceIndex(ids, f.ParentID), func(_ string, index int) {
		if index >= 0 && index < len(ids) {
			f.ParentID = ids[index]
		}
	})
	form.AddButton("Save", func() {
		if strings.TrimSpace(f.Name) == "" {
			a.showFormError("Folder name is required")
			return
		}

		var err error
		if edit {
			err = a.folderSvc.Update(f)
		} else {
			_, err = a.folderSvc.Create(f.Name, f.ParentID)
		}
		if err != nil {
			a.showFormError(fmt.Sprintf("Failed to save folder: %v", err))
			return
		}
		a.closeForm()
		a.refreshAll()
	})
	form.AddButton("Cancel", a.closeForm)

	title := "New Folder"
	if edit {
		title = "Edit Folder"
	}
	a.openForm(form, title)
}

func (a *App) openForm(form *tview.Form, title string) {
	form.SetBorder(true).SetTitle(title)
	a.pages.AddPage("form", form, true, true)
	a.mode = ModeForm
	a.app.SetFocus(form)
	a.updateStatus()
}

func (a *App) closeForm() {
	a.pages.RemovePage("form")
	a.setMode(ModeNormal)
}

// showFormError reports a problem with the form input and returns to the
// form once dismissed.
func (a *App) showFormError(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			a.pages.RemovePage("error")
			if form, ok := a.formPage(); ok {
				a.mode = ModeForm
				a.app.SetFocus(form)
			}
		})

	modal.SetBorder(true).SetTitle("Error")
	a.pages.AddPage("error", modal, true, true)
	a.mode = ModeModal
	a.app.SetFocus(modal)
}

func (a *App) formPage() (tview.Primitive, bool) {
	if !a.pages.HasPage("form") {
		return nil, false
	}
	_, page := a.pages.GetFrontPage()
	return page, page != nil
}

func (a *App) showError(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			a.pages.RemovePage("error")
			a.setMode(ModeNormal)
		})

	modal.SetBorder(true).SetTitle("Error")
	a.pages.AddPage("error", modal, true, true)
	a.mode = ModeModal
	a.app.SetFocus(modal)
}

func (a *App) showConfirm(message string, onConfirm func()) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"Cancel", "OK"}).
		SetDoneFunc(func(buttonIndex int, _ string) {
			a.pages.RemovePage("confirm")
			a.setMode(ModeNormal)
			if buttonIndex == 1 && onConfirm != nil {
				onConfirm()
			}
		})

	modal.SetBorder(true).SetTitle("Confirm")
	a.pages.AddPage("confirm", modal, true, true)
	a.mode = ModeModal
	a.app.SetFocus(modal)
}

// listText is the main line of a list entry.
func listText(b models.Bookmark) string {
	title := b.Title
	if title == "" {
		title = b.URL
	}
	if b.IsFavorite {
		return favoriteMark + " " + tview.Escape(title)
	}
	return "  " + tview.Escape(title)
}

func detailsText(b models.Bookmark, zoom string) string {
	folder := "/"
	if b.FolderName != nil {
		folder = *b.FolderName
	}
	favorite := "no"
	if b.IsFavorite {
		favorite = "yes"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[::b]Title:[::-]\n%s\n\n", tview.Escape(b.Title))
	fmt.Fprintf(&sb, "[::b]URL:[::-]\n%s\n\n", tview.Escape(b.URL))
	if b.Description != "" {
		fmt.Fprintf(&sb, "[::b]Description:[::-]\n%s\n\n", tview.Escape(b.Description))
	}
	fmt.Fprintf(&sb, "[::b]Folder:[::-]\n%s\n\n", tview.Escape(folder))
	fmt.Fprintf(&sb, "[::b]Favorite:[::-]\n%s", favorite)
	if zoom != "" {
		fmt.Fprintf(&sb, "\n\n[::b]Text size:[::-]\n%s", zoom)
	}
	return sb.String()
}

// folderTree orders folders depth first under a leading all-bookmarks entry.
// Folders whose parent is unknown are shown at the top level.
func folderTree(folders []models.Folder) []folderItem {
	known := make(map[int]bool, len(folders))
	for _, f := range folders {
		known[f.ID] = true
	}

	var roots []models.Folder
	children := make(map[int][]models.Folder)
	for _, f := range folders {
		if f.ParentID == nil || !known[*f.ParentID] {
			roots = append(roots, f)
			continue
		}
		children[*f.ParentID] = append(children[*f.ParentID], f)
	}

	items := []folderItem{{Name: allBookmarks}}
	var walk func(level []models.Folder, depth int)
	walk = func(level []models.Folder, depth int) {
		for _, f := range level {
			id := f.ID
			items = append(items, folderItem{ID: &id, Name: f.Name, Level: depth})
			walk(children[f.ID], depth+1)
		}
	}
	walk(roots, 1)
	return items
}

func folderIndex(items []folderItem, id int) int {
	for i, item := range items {
		if item.ID != nil && *item.ID == id {
			return i
		}
	}
	return -1
}

func folderLabel(item folderItem) string {
	if item.Level <= 1 {
		return tview.Escape(item.Name)
	}
	return strings.Repeat("  ", item.Level-2) + "└─ " + tview.Escape(item.Name)
}

func folderDetailsText(name string, content []models.Item) string {
	var folders, bookmarks []string
	for _, item := range content {
		switch item.Type {
		case models.ItemTypeFolder:
			folders = append(folders, tview.Escape(item.Name))
		case models.ItemTypeBookmark:
			bookmarks = append(bookmarks, tview.Escape(item.Name))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[::b]Folder:[::-]\n%s\n\n", tview.Escape(name))
	fmt.Fprintf(&sb, "[::b]Subfolders (%d):[::-]\n", len(folders))
	for _, f := range folders {
		fmt.Fprintf(&sb, "%s\n", f)
	}
	fmt.Fprintf(&sb, "\n[::b]Bookmarks (%d):[::-]\n", len(bookmarks))
	for _, b := range bookmarks {
		fmt.Fprintf(&sb, "%s\n", b)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func openURL(url string) error {
	var cmd string
	var args []string
	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default:
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
