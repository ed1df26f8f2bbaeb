package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
)

const PlaceHolderText = "Write a journal entry or type /help..."

// entryKind decides how a journal line is styled.
type entryKind int

const (
	entryInfo entryKind = iota
	entryUser
	entryStory
	entryError
)

type journalEntry struct {
	kind  entryKind
	title string
	text  string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *apiClient
	state        *narrative.NarrativeState
	scenario     *scenario.Scenario
	balances     narrative.Balances
	journal      []journalEntry
	lastStory    string
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Scenario selection state
	showScenarioModal bool
	scenarios         []scenario.Summary
	selectedScenario  int
	loadingScenarios  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type scenariosLoadedMsg struct {
	scenarios []scenario.Summary
	err       error
}

type narrativeStartedMsg struct {
	state    *narrative.NarrativeState
	scenario *scenario.Scenario
	err      error
}

type stateMsg struct {
	state *narrative.NarrativeState
	err   error
}

type eventAppendedMsg struct {
	event narrative.Event
	err   error
}

type tickMsg struct {
	result engine.TickResult
	err    error
}

type undeliveredMsg struct {
	reveals []engine.Reveal
	err     error
}

type deliveredMsg struct {
	questID string
	result  engine.DeliverResult
	err     error
}

type progressMsg struct {
	progress []engine.QuestProgress
	err      error
}

type ledgerMsg struct {
	ledger LedgerResponse
	err    error
}

// streamMsg is one server-sent event relayed from the stream listener.
type streamMsg struct {
	event string
	data  string
}

type progressTickMsg struct{}

var titleCaser = cases.Title(language.English)

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	questTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	storyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api *apiClient) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 500
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:            cfg,
		api:               api,
		textarea:          ta,
		chatViewport:      chatVp,
		metaViewport:      metaVp,
		showScenarioModal: true,
		loadingScenarios:  true,
	}
}

// displayName turns "mission_completed" into "Mission Completed".
func displayName(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

func (m *ConsoleUI) questTitle(questID string) string {
	if m.scenario != nil {
		if def, ok := m.scenario.Quest(questID); ok && def.Title != "" {
			return def.Title
		}
	}
	return displayName(questID)
}

func (m *ConsoleUI) addEntry(kind entryKind, title, text string) {
	m.journal = append(m.journal, journalEntry{kind: kind, title: title, text: text})
	if kind == entryStory {
		m.lastStory = text
	}
}

func writeMetadata(st *narrative.NarrativeState, sc *scenario.Scenario, balances narrative.Balances) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("NARRATIVE") + "\n\n")

	content.WriteString("Scenario:\n")
	if sc != nil {
		content.WriteString(sc.Name + "\n\n")
	} else {
		content.WriteString(st.ScenarioID + "\n\n")
	}

	content.WriteString("Chapter:\n")
	content.WriteString(fmt.Sprintf("%d\n\n", st.CurrentChapter))

	content.WriteString("Quests:\n")
	for _, status := range []narrative.QuestStatus{narrative.StatusUnlocked, narrative.StatusConsumed} {
		for _, q := range st.QuestsWithStatus(status) {
			title := q.ID
			if sc != nil {
				if def, ok := sc.Quest(q.ID); ok && def.Title != "" {
					title = def.Title
				}
			}
			content.WriteString(fmt.Sprintf("• %s (%s)\n", title, titleCaser.String(string(q.Status))))
		}
	}
	pending := len(st.QuestsWithStatus(narrative.StatusPending))
	content.WriteString(fmt.Sprintf("• %d hidden\n\n", pending))

	if len(balances) > 0 {
		content.WriteString("Balances:\n")
		for _, k := range balances.Keys() {
			content.WriteString(fmt.Sprintf("• %s: %d\n", displayName(k), balances[k]))
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /tick: Check quests\n")

	return content.String()
}

// writeChatContent rebuilds the journal for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 10 {
		chatWidth = 10
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("QUEST ENGINE") + "\n\n")
	content.WriteString("Report progress below. Hidden quests reveal themselves as you go.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	for _, e := range m.journal {
		content.WriteString(formatEntry(e, chatWidth) + "\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func formatEntry(e journalEntry, width int) string {
	switch e.kind {
	case entryStory:
		return questTitleStyle.Render(e.title) + "\n" + storyStyle.Render(wordwrap.String(e.text, width))
	case entryUser:
		return userStyle.Render("You: ") + wordwrap.String(e.text, width-5)
	case entryError:
		return errorStyle.Render("Error: " + wordwrap.String(e.text, width-7))
	default:
		if e.title != "" {
			return titleStyle.Render(e.title) + "\n" + wordwrap.String(e.text, width)
		}
		return wordwrap.String(e.text, width)
	}
}

func (m *ConsoleUI) refreshMeta() {
	if m.state != nil {
		m.metaViewport.SetContent(writeMetadata(m.state, m.scenario, m.balances))
	}
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.showScenarioModal {
		return m.loadScenarios()
	}
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The quit modal can open over the scenario modal
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	if m.showScenarioModal {
		return m.updateScenarioModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeChatContent()
		m.refreshMeta()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m.handleInput(input)
		}

	case eventAppendedMsg:
		if msg.err != nil {
			return m.finishWithError(msg.err)
		}
		m.addEntry(entryInfo, "", fmt.Sprintf("Recorded %s (%s).",
			displayName(string(msg.event.Kind)), msg.event.Attribute))
		// Progress is only noticed on a tick, so run one right away.
		m.writeChatContent()
		return m, m.tickNarrative()

	case tickMsg:
		if msg.err != nil {
			return m.finishWithError(msg.err)
		}
		m.state = msg.result.State
		m.refreshMeta()
		if len(msg.result.Unlocked) == 0 {
			m.loading = false
			m.writeChatContent()
			return m, nil
		}
		return m.revealAll(msg.result.Unlocked)

	case undeliveredMsg:
		if msg.err != nil {
			return m.finishWithError(msg.err)
		}
		if len(msg.reveals) == 0 {
			m.loading = false
			m.addEntry(entryInfo, "", "Nothing is waiting to be read.")
			m.writeChatContent()
			return m, nil
		}
		return m.revealAll(msg.reveals)

	case deliveredMsg:
		if msg.err != nil {
			return m.finishWithError(fmt.Errorf("deliver %s: %w", msg.questID, msg.err))
		}
		if msg.result.RewardApplied {
			m.addEntry(entryInfo, "", fmt.Sprintf("Reward collected for %s.", m.questTitle(msg.questID)))
		}
		m.writeChatContent()
		return m, tea.Batch(m.refreshState(), m.loadLedger(false))

	case stateMsg:
		m.loading = false
		if msg.err != nil {
			return m.finishWithError(msg.err)
		}
		m.state = msg.state
		m.refreshMeta()
		m.writeChatContent()

	case progressMsg:
		m.loading = false
		if msg.err != nil {
			return m.finishWithError(msg.err)
		}
		m.addEntry(entryInfo, "Progress", formatProgress(msg.progress))
		m.writeChatContent()

	case ledgerMsg:
		m.loading = false
		if msg.err != nil {
			return m.finishWithError(msg.err)
		}
		m.balances = msg.ledger.Balances
		m.refreshMeta()
		m.writeChatContent()

	case ledgerShownMsg:
		m.loading = false
		if msg.err != nil {
			return m.finishWithError(msg.err)
		}
		m.balances = msg.ledger.Balances
		m.addEntry(entryInfo, "Ledger", m.formatLedger(msg.ledger))
		m.refreshMeta()
		m.writeChatContent()

	case streamMsg:
		return m.handleStream(msg)

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	// Update components for non-mouse events
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// ledgerShownMsg is a ledger fetched on request, as opposed to a refresh.
type ledgerShownMsg ledgerMsg

func (m ConsoleUI) finishWithError(err error) (tea.Model, tea.Cmd) {
	m.loading = false
	m.addEntry(entryError, "", err.Error())
	m.writeChatContent()
	return m, nil
}

// revealAll shows each reveal's story and delivers it. The console acts as
// the renderer, so authored text is shown when present and the reveal
// prompt otherwise.
func (m ConsoleUI) revealAll(reveals []engine.Reveal) (tea.Model, tea.Cmd) {
	m.loading = false
	cmds := make([]tea.Cmd, 0, len(reveals))
	for _, r := range reveals {
		text := strings.TrimSpace(r.Narrative.Text)
		if text == "" {
			text = strings.TrimSpace(r.Narrative.Prompt)
		}
		m.addEntry(entryStory, fmt.Sprintf("✦ %s (Chapter %d)", r.Title, r.Chapter), text)
		cmds = append(cmds, m.deliverQuest(r.QuestID))
	}
	m.writeChatContent()
	return m, tea.Sequence(cmds...)
}

func (m ConsoleUI) handleInput(input string) (tea.Model, tea.Cmd) {
	cmd, err := parseCommand(input)
	if err != nil {
		return m.finishWithError(err)
	}

	switch cmd.name {
	case cmdHelp:
		m.addEntry(entryInfo, "Help", helpText)
		m.writeChatContent()
		return m, nil

	case cmdCopy:
		if m.lastStory == "" {
			return m.finishWithError(fmt.Errorf("no story has been revealed yet"))
		}
		if err := clipboard.WriteAll(m.lastStory); err != nil {
			return m.finishWithError(fmt.Errorf("copy failed: %w", err))
		}
		m.addEntry(entryInfo, "", "Copied the last story to the clipboard.")
		m.writeChatContent()
		return m, nil

	case cmdEvent:
		ev, err := cmd.progressEvent(time.Now())
		if err != nil {
			return m.finishWithError(err)
		}
		if !strings.HasPrefix(input, "/") {
			m.addEntry(entryUser, "", input)
		}
		return m.startLoading(m.appendEvent(ev))

	case cmdTick:
		return m.startLoading(m.tickNarrative())
	case cmdRead:
		return m.startLoading(m.loadUndelivered())
	case cmdDeliver:
		return m.startLoading(m.deliverQuest(cmd.args[0]))
	case cmdProgress:
		return m.startLoading(m.loadProgress())
	case cmdLedger:
		return m.startLoading(m.loadLedger(true))
	case cmdRefresh:
		return m.startLoading(m.refreshState())
	}
	return m, nil
}

func (m ConsoleUI) startLoading(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.loading = true
	m.progressTick = 0
	m.writeChatContent()
	return m, tea.Batch(cmd, progressTick())
}

func (m ConsoleUI) handleStream(msg streamMsg) (tea.Model, tea.Cmd) {
	if msg.event == "" || msg.event == "connected" {
		return m, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(msg.data), &data); err != nil {
		return m, nil
	}
	questID, _ := data["quest_id"].(string)

	switch events.EventType(msg.event) {
	case events.EventTypeStoryRendered:
		text, _ := data["text"].(string)
		m.addEntry(entryStory, "✦ "+m.questTitle(questID), text)
	case events.EventTypeRequestFailed:
		reason, _ := data["error"].(string)
		m.addEntry(entryError, "", "background request failed: "+reason)
	case events.EventTypeQuestUnlocked:
		m.addEntry(entryInfo, "", fmt.Sprintf("Quest unlocked: %s", m.questTitle(questID)))
	default:
		return m, m.refreshState()
	}
	m.writeChatContent()
	return m, m.refreshState()
}

func formatProgress(progress []engine.QuestProgress) string {
	if len(progress) == 0 {
		return "No hidden quests remain."
	}
	var b strings.Builder
	for _, p := range progress {
		mark := "○"
		if p.Satisfied {
			mark = "●"
		}
		b.WriteString(fmt.Sprintf("%s %s\n", mark, p.Trigger))
		for _, leaf := range p.Leaves {
			b.WriteString(fmt.Sprintf("    %s: %d/%d\n", leaf.Description, leaf.Current, leaf.Threshold))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *ConsoleUI) formatLedger(l LedgerResponse) string {
	if len(l.Entries) == 0 {
		return "No rewards applied yet."
	}
	var b strings.Builder
	for _, e := range l.Entries {
		b.WriteString(fmt.Sprintf("• %s at %s\n", m.questTitle(e.QuestID), e.AppliedAt.Local().Format("Jan 2 15:04")))
	}
	for _, k := range l.Balances.Keys() {
		b.WriteString(fmt.Sprintf("%s: %d\n", displayName(k), l.Balances[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m ConsoleUI) appendEvent(ev queue.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		appended, err := m.api.appendEvent(ctx, ev)
		return eventAppendedMsg{appended, err}
	}
}

func (m ConsoleUI) tickNarrative() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		result, err := m.api.tick(ctx)
		return tickMsg{result, err}
	}
}

func (m ConsoleUI) loadUndelivered() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		reveals, err := m.api.undelivered(ctx)
		return undeliveredMsg{reveals, err}
	}
}

func (m ConsoleUI) deliverQuest(questID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		result, err := m.api.deliver(ctx, questID)
		return deliveredMsg{questID, result, err}
	}
}

func (m ConsoleUI) loadProgress() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		progress, err := m.api.progress(ctx)
		return progressMsg{progress, err}
	}
}

func (m ConsoleUI) loadLedger(show bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		ledger, err := m.api.ledger(ctx)
		if show {
			return ledgerShownMsg{ledger, err}
		}
		return ledgerMsg{ledger, err}
	}
}

func (m ConsoleUI) refreshState() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		st, err := m.api.getState(ctx)
		return stateMsg{st, err}
	}
}

func (m ConsoleUI) loadScenarios() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		scenarios, err := m.api.listScenarios(ctx)
		return scenariosLoadedMsg{scenarios, err}
	}
}

func (m ConsoleUI) startNarrative(scenarioID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout(m.config.Timeout)
		defer cancel()
		st, err := m.api.startNarrative(ctx, scenarioID)
		if err != nil {
			return narrativeStartedMsg{err: err}
		}
		// A resumed narrative may belong to another scenario.
		sc, err := m.api.getScenario(ctx, st.ScenarioID)
		return narrativeStartedMsg{st, sc, err}
	}
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.scenarios = msg.scenarios
		}

	case narrativeStartedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.state = msg.state
		m.scenario = msg.scenario
		m.showScenarioModal = false
		if m.width > 0 && m.height > 0 {
			m.resize()
		}
		if m.scenario != nil && m.scenario.Story != "" {
			m.addEntry(entryInfo, m.scenario.Name, m.scenario.Story)
		}
		m.writeChatContent()
		m.refreshMeta()
		m.textarea.Focus()
		m.ready = true
		// Pick up anything a background worker unlocked but never delivered.
		return m, tea.Batch(textarea.Blink, m.loadLedger(false), m.loadUndelivered())

	case tea.KeyMsg:
		if m.loadingScenarios {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		}
		if m.err != nil || m.loading {
			return m, nil
		}

		switch msg.Type {
		case tea.KeyUp:
			if m.selectedScenario > 0 {
				m.selectedScenario--
			}
		case tea.KeyDown:
			if m.selectedScenario < len(m.scenarios)-1 {
				m.selectedScenario++
			}
		case tea.KeyEnter:
			if len(m.scenarios) > 0 {
				m.loading = true
				return m, m.startNarrative(m.scenarios[m.selectedScenario].ID)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if m.showScenarioModal {
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Your progress is saved on the server.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingScenarios:
		content.WriteString(modalTitleStyle.Render("Loading Scenarios..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available scenarios..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(wordwrap.String(m.err.Error(), 50)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Starting..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Setting up your narrative..."))
	case len(m.scenarios) == 0:
		content.WriteString(modalTitleStyle.Render("No Scenarios"))
		content.WriteString("\n\n")
		content.WriteString("The server has no published scenarios.\n\nPress Ctrl+C to exit")
	default:
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")

		for i, s := range m.scenarios {
			label := fmt.Sprintf("%s (%d quests)", s.Name, s.QuestCount)
			if i == m.selectedScenario {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}
		if story := m.scenarios[m.selectedScenario].Story; story != "" {
			content.WriteString("\n" + promptStyle.Render(wordwrap.String(story, 54)) + "\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showScenarioModal {
		return m.renderScenarioModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
