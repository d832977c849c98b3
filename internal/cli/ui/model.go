package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stackvity/to-utf/internal/cli/hooks"
	"github.com/stackvity/to-utf/pkg/converter"
)

const listHeightMargin = 4

const (
	phaseInitializing = "Initializing..."
	phaseScanning     = "Scanning..."
	phaseConverting   = "Converting..."
	phaseComplete     = "Complete"
)

// Model represents the state of the TUI application.
type Model struct {
	list    list.Model
	spinner spinner.Model
	width   int
	height  int
	// initialized is set once the first WindowSizeMsg arrives.
	initialized bool
	version     string
	dryRun      bool

	fileItems []listItem
	// itemMap maps relative paths to their index in fileItems.
	itemMap     map[string]int
	processTime map[string]time.Time

	summary      Summary
	phaseMessage string
	fatalError   string
	quitting     bool
	// refreshPending is true while an UpdateListMsg tick is in flight.
	refreshPending bool
}

// listItem is a single file row in the TUI list.
type listItem struct {
	path     string
	status   converter.Status
	message  string
	assumed  bool
	duration time.Duration
}

// Summary holds the aggregated statistics displayed in the TUI footer.
type Summary struct {
	TotalFilesScanned int
	ProcessedCount    int
	AssumedCount      int
	CachedCount       int
	SkippedCount      int
	ErrorCount        int
	StartTime         time.Time
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles key input and hook events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - listHeightMargin
		if listHeight < 1 {
			listHeight = 1
		}
		m.list.SetSize(m.width, listHeight)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.FileDiscoveredMsg:
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.addItem(listItem{path: msg.Path, status: converter.StatusPending})
			cmds = append(cmds, m.scheduleListUpdate())
		}
		if !m.quitting && m.phaseMessage == phaseInitializing {
			m.phaseMessage = phaseScanning
		}

	case hooks.FileStatusUpdateMsg:
		if idx, ok := m.itemMap[msg.Path]; ok {
			item := &m.fileItems[idx]

			if msg.Status == converter.StatusProcessing {
				m.processTime[msg.Path] = time.Now()
				item.duration = 0
			} else if isFinalStatus(msg.Status) {
				if msg.Duration > 0 {
					item.duration = msg.Duration
				} else if started, found := m.processTime[msg.Path]; found {
					item.duration = time.Since(started)
				}
				delete(m.processTime, msg.Path)
			}

			wasFinal := isFinalStatus(item.status)
			if isFinalStatus(msg.Status) && !wasFinal {
				m.incrementSummaryCount(msg.Status, msg.Assumed)
			} else if !isFinalStatus(msg.Status) && wasFinal {
				m.decrementSummaryCount(item.status, item.assumed)
			}
			item.status = msg.Status
			item.message = msg.Message
			item.assumed = msg.Assumed
		} else {
			// Discovery message missed; status updates still count.
			m.addItem(listItem{path: msg.Path, status: msg.Status, message: msg.Message, assumed: msg.Assumed, duration: msg.Duration})
			if isFinalStatus(msg.Status) {
				m.incrementSummaryCount(msg.Status, msg.Assumed)
			}
		}
		cmds = append(cmds, m.scheduleListUpdate())

		if !m.quitting && msg.Status == converter.StatusProcessing {
			m.phaseMessage = phaseConverting
		}

	case hooks.RunCompleteMsg:
		m.phaseMessage = phaseComplete
		s := msg.Report.Summary
		m.summary.ProcessedCount = s.ProcessedCount
		m.summary.AssumedCount = s.AssumedCount
		m.summary.CachedCount = s.CachedCount
		m.summary.SkippedCount = s.SkippedCount
		m.summary.ErrorCount = s.ErrorCount
		if s.FatalErrorOccurred {
			m.fatalError = "Run halted due to fatal error."
			for _, e := range msg.Report.Errors {
				if e.IsFatal {
					m.fatalError = fmt.Sprintf("Fatal Error: %s (%s)", e.Error, e.Path)
					break
				}
			}
		}

	case UpdateListMsg:
		m.refreshPending = false
		items := make([]list.Item, len(m.fileItems))
		for i, item := range m.fileItems {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

// View renders the header, the file list and the summary footer.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := fmt.Sprintf("to-utf v%s", m.version)
	if m.dryRun {
		headerLeft += " (dry run)"
	}
	headerRight := m.phaseMessage
	if m.phaseMessage != phaseComplete && m.phaseMessage != phaseInitializing {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width, headerLeft, headerRight, lipgloss.Top))

	verb := "Converted"
	if m.dryRun {
		verb = "Listed"
	}
	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	summaryText := fmt.Sprintf(
		"%s: %d (Assumed: %d, Cached: %d) | Skipped: %d | Failed: %d | Total Scanned: %d | Elapsed: %s",
		verb,
		m.summary.ProcessedCount,
		m.summary.AssumedCount,
		m.summary.CachedCount,
		m.summary.SkippedCount,
		m.summary.ErrorCount,
		m.summary.TotalFilesScanned,
		elapsed,
	)
	footer := FooterStyle.Width(m.width).Render(spread(m.width, summaryText, "q: quit", lipgloss.Bottom))

	errorView := ""
	if m.fatalError != "" {
		errorView = StatusStyleFailed.Render(m.fatalError) + "\n"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.list.View(),
		errorView,
		footer,
	)
}

// spread places left and right at the edges of a line of the given width.
func spread(width int, left, right string, pos lipgloss.Position) string {
	center := ""
	if gap := width - lipgloss.Width(left) - lipgloss.Width(right); gap > 0 {
		center = lipgloss.PlaceHorizontal(gap, lipgloss.Center, " ")
	}
	return lipgloss.JoinHorizontal(pos, left, center, right)
}

// NewModel creates the initial model for the TUI.
func NewModel(version string, dryRun bool) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return Model{
		list:         l,
		spinner:      s,
		version:      version,
		dryRun:       dryRun,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		fileItems:    make([]listItem, 0, 1000),
		itemMap:      make(map[string]int),
		processTime:  make(map[string]time.Time),
	}
}

func (m *Model) addItem(item listItem) {
	m.fileItems = append(m.fileItems, item)
	m.itemMap[item.path] = len(m.fileItems) - 1
	m.summary.TotalFilesScanned++
}

func isFinalStatus(status converter.Status) bool {
	return status == converter.StatusSuccess ||
		status == converter.StatusFailed ||
		status == converter.StatusSkipped ||
		status == converter.StatusCached
}

func (m *Model) incrementSummaryCount(status converter.Status, assumed bool) {
	switch status {
	case converter.StatusSuccess:
		m.summary.ProcessedCount++
		if assumed {
			m.summary.AssumedCount++
		}
	case converter.StatusCached:
		m.summary.ProcessedCount++
		m.summary.CachedCount++
	case converter.StatusSkipped:
		m.summary.SkippedCount++
	case converter.StatusFailed:
		m.summary.ErrorCount++
	}
}

func (m *Model) decrementSummaryCount(status converter.Status, assumed bool) {
	switch status {
	case converter.StatusSuccess:
		m.summary.ProcessedCount--
		if assumed {
			m.summary.AssumedCount--
		}
	case converter.StatusCached:
		m.summary.ProcessedCount--
		m.summary.CachedCount--
	case converter.StatusSkipped:
		m.summary.SkippedCount--
	case converter.StatusFailed:
		m.summary.ErrorCount--
	}
}

// FilterValue implements list.Item.
func (i listItem) FilterValue() string { return i.path }

// Title implements list.DefaultItem.
func (i listItem) Title() string { return i.path }

// Description implements list.DefaultItem. Finished files show the detected
// encoding taken from their listing line.
func (i listItem) Description() string {
	var statusStyle lipgloss.Style
	var statusIcon string
	switch i.status {
	case converter.StatusSuccess:
		statusStyle = StatusStyleSuccess
		statusIcon = "✓"
	case converter.StatusFailed:
		statusStyle = StatusStyleFailed
		statusIcon = "✗"
	case converter.StatusSkipped:
		statusStyle = StatusStyleSkipped
		statusIcon = "S"
	case converter.StatusCached:
		statusStyle = StatusStyleCached
		statusIcon = "C"
	case converter.StatusProcessing:
		statusStyle = StatusStyleProcessing
		statusIcon = "…"
	default:
		statusStyle = StatusStylePending
		statusIcon = " "
	}

	statusStr := statusStyle.Render(fmt.Sprintf("[%s]", statusIcon))
	details := ""
	switch i.status {
	case converter.StatusFailed:
		details = i.message
	case converter.StatusSkipped:
		// "reason: details"
		details = strings.TrimSpace(strings.SplitN(i.message, ":", 2)[0])
	case converter.StatusSuccess, converter.StatusCached:
		details = listingDetail(i.message)
		if d := formatDuration(i.duration); d != "" {
			if details != "" {
				details += " "
			}
			details += d
		}
	}
	return fmt.Sprintf("%s %s", statusStr, details)
}

// listingDetail extracts "assuming ISO-8859-1, BOM detected" from
// "src/A.java (assuming ISO-8859-1, BOM detected)".
func listingDetail(listing string) string {
	open := strings.LastIndex(listing, " (")
	if open < 0 || !strings.HasSuffix(listing, ")") {
		return ""
	}
	return listing[open+2 : len(listing)-1]
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		if d == 0 {
			return ""
		}
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// UpdateListMsg signals that the list component should refresh its items.
type UpdateListMsg struct{}

const listUpdateDebounceDuration = 50 * time.Millisecond

// scheduleListUpdate coalesces list refreshes into one per debounce window.
func (m *Model) scheduleListUpdate() tea.Cmd {
	if m.refreshPending {
		return nil
	}
	m.refreshPending = true
	return tea.Tick(listUpdateDebounceDuration, func(time.Time) tea.Msg {
		return UpdateListMsg{}
	})
}

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("62")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("56")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusSuccess    = lipgloss.Color("40")
	ColorStatusFailed     = lipgloss.Color("196")
	ColorStatusSkipped    = lipgloss.Color("214")
	ColorStatusCached     = lipgloss.Color("39")
	ColorStatusPending    = lipgloss.Color("244")
	ColorStatusProcessing = lipgloss.Color("205")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess    = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed     = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleSkipped    = lipgloss.NewStyle().Foreground(ColorStatusSkipped)
	StatusStyleCached     = lipgloss.NewStyle().Foreground(ColorStatusCached)
	StatusStylePending    = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
