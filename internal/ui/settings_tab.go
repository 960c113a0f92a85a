package ui

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/i18n"
	"github.com/skobkin/machinecfg/internal/transport"
)

const (
	connectorOptionIP     = "IP"
	connectorOptionSerial = "Serial"
)

var (
	// GRBL builds commonly run at 115200; 250000 is the Marlin/ESP default.
	serialBaudOptions = []string{"9600", "19200", "38400", "57600", "115200", "230400", "250000", "460800", "921600"}
	logLevelOptions   = []string{"debug", "info", "warn", "error"}
	logFormatOptions  = []string{string(config.LogFormatText), string(config.LogFormatJSON)}

	listSerialPorts = transport.ListSerialPorts
)

// appSettingsForm edits the persisted application config.
type appSettingsForm struct {
	dep   RuntimeDependencies
	saved config.AppConfig

	connector  *widget.Select
	host       *widget.Entry
	port       *widget.Entry
	serialPort *widget.Select
	serialBaud *widget.Select
	ipRows     []fyne.CanvasObject
	serialRows []fyne.CanvasObject

	logLevel  *widget.Select
	logFormat *widget.Select
	logToFile *widget.Check

	language      *widget.Select
	autoload      *widget.Check
	notifications *widget.Check

	status  *widget.Label
	content fyne.CanvasObject
}

func newSettingsTab(dep RuntimeDependencies, connStatus *widget.Label) fyne.CanvasObject {
	return newAppSettingsForm(dep, connStatus).content
}

func newAppSettingsForm(dep RuntimeDependencies, connStatus *widget.Label) *appSettingsForm {
	saved := dep.Data.Config
	saved.FillMissingDefaults()

	f := &appSettingsForm{
		dep:           dep,
		saved:         saved,
		connector:     widget.NewSelect([]string{connectorOptionSerial, connectorOptionIP}, nil),
		host:          widget.NewEntry(),
		port:          widget.NewEntry(),
		serialPort:    widget.NewSelect(nil, nil),
		serialBaud:    widget.NewSelect(nil, nil),
		logLevel:      widget.NewSelect(logLevelOptions, nil),
		logFormat:     widget.NewSelect(logFormatOptions, nil),
		logToFile:     widget.NewCheck("", nil),
		language:      widget.NewSelect(nil, nil),
		autoload:      widget.NewCheck("", nil),
		notifications: widget.NewCheck("", nil),
		status:        widget.NewLabel(""),
	}
	f.host.SetPlaceHolder("IP address or hostname")
	f.port.SetPlaceHolder(strconv.Itoa(config.DefaultIPPort))
	f.serialPort.PlaceHolder = "Select serial port"
	f.status.Wrapping = fyne.TextWrapWord

	f.content = f.layout(connStatus)
	f.load(saved)
	f.connector.OnChanged = f.onConnectorChanged
	if saved.Connection.Connector == config.ConnectorSerial {
		f.refreshPorts()
	}

	return f
}

func (f *appSettingsForm) layout(connStatus *widget.Label) fyne.CanvasObject {
	portRow := container.NewBorder(nil, nil, nil, widget.NewButton("Refresh", f.refreshPorts), f.serialPort)

	hostLabel, portLabel := widget.NewLabel("IP Host"), widget.NewLabel("IP Port")
	serialLabel, baudLabel := widget.NewLabel("Serial Port"), widget.NewLabel("Serial Baud")
	f.ipRows = []fyne.CanvasObject{hostLabel, f.host, portLabel, f.port}
	f.serialRows = []fyne.CanvasObject{serialLabel, portRow, baudLabel, f.serialBaud}

	connection := container.New(layout.NewFormLayout(),
		widget.NewLabel("Connector"), f.connector,
		hostLabel, f.host,
		portLabel, f.port,
		serialLabel, portRow,
		baudLabel, f.serialBaud,
	)

	clearHistory := widget.NewButton("Clear history", f.clearHistory)
	if f.dep.Actions.OnClearHistory == nil {
		clearHistory.Disable()
	}
	save := widget.NewButton("Save", f.save)
	save.Importance = widget.HighImportance

	return container.NewVScroll(container.NewVBox(
		widget.NewCard("Connection", "", container.NewVBox(connStatus, connection)),
		widget.NewCard("Interface", "", widget.NewForm(
			widget.NewFormItem("Language", f.language),
			widget.NewFormItem("Load settings on connect", f.autoload),
			widget.NewFormItem("Desktop notifications", f.notifications),
		)),
		widget.NewCard("Logging", "", widget.NewForm(
			widget.NewFormItem("Log Level", f.logLevel),
			widget.NewFormItem("Log Format", f.logFormat),
			widget.NewFormItem("Log to file", f.logToFile),
		)),
		widget.NewCard("Maintenance", "", clearHistory),
		save,
		f.status,
		widget.NewCard("", "", container.NewVBox(
			widget.NewLabel("Version: "+app.BuildVersionWithDate()),
			newSafeHyperlink("GRBL settings reference", app.SettingsReferenceURL, f.status),
		)),
	))
}

// load copies cfg into the widgets.
func (f *appSettingsForm) load(cfg config.AppConfig) {
	conn := cfg.Connection
	f.connector.SetSelected(connectorOptionFromType(conn.Connector))
	f.host.SetText(conn.Host)
	f.port.SetText(strconv.Itoa(conn.Port))
	f.serialPort.SetSelected(conn.SerialPort)
	baud := strconv.Itoa(conn.SerialBaud)
	f.serialBaud.SetOptions(uniqueValues(append(slices.Clone(serialBaudOptions), baud)))
	f.serialBaud.SetSelected(baud)
	f.showConnectorRows(conn.Connector)

	level := strings.ToLower(cfg.Logging.Level)
	if !slices.Contains(logLevelOptions, level) {
		level = "info"
	}
	f.logLevel.SetSelected(level)
	f.logFormat.SetSelected(string(cfg.Logging.Format))
	f.logToFile.SetChecked(cfg.Logging.LogToFile)

	f.language.SetOptions(uniqueValues(append(i18n.Languages(), cfg.UI.Language)))
	f.language.SetSelected(cfg.UI.Language)
	f.autoload.SetChecked(cfg.UI.Autoload)
	f.notifications.SetChecked(cfg.UI.Notifications.Desktop)
}

// collect builds the config to save from the widgets.
func (f *appSettingsForm) collect() (config.AppConfig, error) {
	cfg := f.saved
	conn := &cfg.Connection
	conn.Connector = connectorTypeFromOption(f.connector.Selected)
	conn.Host = strings.TrimSpace(f.host.Text)
	conn.SerialPort = strings.TrimSpace(f.serialPort.Selected)

	var err error
	switch conn.Connector {
	case config.ConnectorIP:
		conn.Port, err = parseIPPort(f.port.Text)
	case config.ConnectorSerial:
		conn.SerialBaud, err = parseSerialBaud(f.serialBaud.Selected)
	}
	if err != nil {
		return config.AppConfig{}, err
	}

	cfg.Logging.Level = f.logLevel.Selected
	cfg.Logging.Format = config.LogFormat(f.logFormat.Selected)
	cfg.Logging.LogToFile = f.logToFile.Checked
	cfg.UI.Language = strings.TrimSpace(f.language.Selected)
	cfg.UI.Autoload = f.autoload.Checked
	cfg.UI.Notifications.Desktop = f.notifications.Checked

	return cfg, nil
}

func (f *appSettingsForm) save() {
	cfg, err := f.collect()
	if err == nil && f.dep.Actions.OnSave == nil {
		err = errors.New("saving is not available")
	}
	if err == nil {
		err = f.dep.Actions.OnSave(cfg)
	}
	if err != nil {
		appLogger.Warn("save app settings failed", "error", err)
		f.status.SetText("Save failed: " + err.Error())
		f.dep.showError(err)

		return
	}

	languageChanged := cfg.UI.Language != f.saved.UI.Language
	f.saved = cfg
	if languageChanged {
		f.status.SetText("Saved. The language applies after restart")

		return
	}
	f.status.SetText("Saved")
}

func (f *appSettingsForm) clearHistory() {
	if f.dep.Actions.OnClearHistory == nil {
		return
	}
	f.dep.confirm(f.dep.text("history.clear"), f.dep.text("history.clear.confirm"), func() {
		if err := f.dep.Actions.OnClearHistory(); err != nil {
			f.status.SetText("History clear failed: " + err.Error())

			return
		}
		f.status.SetText("History cleared")
	})
}

func (f *appSettingsForm) onConnectorChanged(option string) {
	connector := connectorTypeFromOption(option)
	f.showConnectorRows(connector)
	if connector == config.ConnectorSerial {
		f.refreshPorts()

		return
	}
	f.status.SetText("")
}

func (f *appSettingsForm) showConnectorRows(connector config.ConnectorType) {
	setVisible(connector == config.ConnectorIP, f.ipRows...)
	setVisible(connector == config.ConnectorSerial, f.serialRows...)
}

// refreshPorts lists the OS serial ports, keeping the configured and the
// selected port as options even when they are currently unplugged.
func (f *appSettingsForm) refreshPorts() {
	selected := strings.TrimSpace(f.serialPort.Selected)
	ports, err := listSerialPorts()
	if err != nil {
		f.status.SetText("Failed to list serial ports: " + err.Error())

		return
	}
	slices.Sort(ports)
	ports = uniqueValues(append(ports, f.saved.Connection.SerialPort, selected))
	f.serialPort.SetOptions(ports)

	if selected == "" {
		selected = f.saved.Connection.SerialPort
	}
	if selected != "" {
		f.serialPort.SetSelected(selected)
	}
	if len(ports) == 0 {
		f.status.SetText("No serial ports detected")

		return
	}
	f.status.SetText("")
}

// newSafeHyperlink falls back to a button reporting the problem when rawURL
// does not parse.
func newSafeHyperlink(text, rawURL string, status *widget.Label) fyne.CanvasObject {
	parsed, err := parseExternalURL(rawURL)
	if err != nil {
		return widget.NewButton(text, func() {
			if status != nil {
				status.SetText(text + " link is unavailable: " + err.Error())
			}
		})
	}

	return widget.NewHyperlink(text, parsed)
}

func parseExternalURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse url: %q is not absolute", rawURL)
	}

	return parsed, nil
}

func setVisible(visible bool, objects ...fyne.CanvasObject) {
	for _, object := range objects {
		if visible {
			object.Show()
		} else {
			object.Hide()
		}
	}
}

// uniqueValues trims values and drops blanks and repeats, keeping order.
func uniqueValues(values []string) []string {
	unique := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" && !slices.Contains(unique, value) {
			unique = append(unique, value)
		}
	}

	return unique
}

func connectorOptionFromType(connector config.ConnectorType) string {
	if connector == config.ConnectorIP {
		return connectorOptionIP
	}

	return connectorOptionSerial
}

func connectorTypeFromOption(option string) config.ConnectorType {
	if strings.TrimSpace(option) == connectorOptionIP {
		return config.ConnectorIP
	}

	return config.ConnectorSerial
}

func parseSerialBaud(value string) (int, error) {
	baud, err := strconv.Atoi(strings.TrimSpace(value))
	switch {
	case err != nil:
		return 0, fmt.Errorf("invalid serial baud %q", value)
	case baud <= 0:
		return 0, errors.New("serial baud must be positive")
	}

	return baud, nil
}

// parseIPPort treats an empty field as the telnet default.
func parseIPPort(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return config.DefaultIPPort, nil
	}
	port, err := strconv.Atoi(value)
	switch {
	case err != nil:
		return 0, fmt.Errorf("invalid ip port %q", value)
	case port <= 0 || port > 65535:
		return 0, fmt.Errorf("ip port out of range: %d", port)
	}

	return port, nil
}
