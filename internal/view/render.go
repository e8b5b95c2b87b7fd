package view

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/and161185/c3ds-console/internal/model"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Devices writes a device table.
func Devices(w io.Writer, ds []model.Device) error {
	if len(ds) == 0 {
		_, err := fmt.Fprintln(w, "No devices.")
		return err
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tCERT EXPIRES\tLOCATION")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Name, d.DeviceType, StatusLabel(d.Status), optTime(d.CertificateExpiresAt), Coordinates(d.Location))
	}
	return tw.Flush()
}

// DeviceDetail writes one device with the actions its status allows.
func DeviceDetail(w io.Writer, d model.Device) error {
	tw := table(w)
	fmt.Fprintf(tw, "ID\t%s\n", d.ID)
	fmt.Fprintf(tw, "Name\t%s\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(tw, "Description\t%s\n", d.Description)
	}
	fmt.Fprintf(tw, "Type\t%s\n", d.DeviceType)
	fmt.Fprintf(tw, "Status\t%s\n", StatusLabel(d.Status))
	fmt.Fprintf(tw, "Algorithm\t%s\n", d.CertificateAlgorithm)
	fmt.Fprintf(tw, "Location\t%s\n", Coordinates(d.Location))
	if d.HasCertificate {
		fmt.Fprintf(tw, "Certificate\t%s\n", d.CertificateSerial)
		fmt.Fprintf(tw, "Expires\t%s\n", optTime(d.CertificateExpiresAt))
		fmt.Fprintf(tw, "Download until\t%s\n", optTime(d.DownloadExpiresAt))
	} else {
		fmt.Fprintf(tw, "Certificate\tnone\n")
	}
	if !d.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Created\t%s\n", d.CreatedAt.Local().Format(time.DateTime))
	}
	var actions []string
	if d.CanDownload() {
		actions = append(actions, "gen-cert", "download-cert", "download-key", "download-bundle")
	}
	if d.CanRevoke() {
		actions = append(actions, "revoke")
	}
	if len(actions) > 0 {
		fmt.Fprintf(tw, "Actions\t%v\n", actions)
	}
	return tw.Flush()
}

// Messages writes the flat feed.
func Messages(w io.Writer, ms []model.Message, now time.Time) error {
	if len(ms) == 0 {
		_, err := fmt.Fprintln(w, "No messages.")
		return err
	}
	tw := table(w)
	fmt.Fprintln(tw, "WHEN\tTYPE\tDEVICE\tCONF\tPREVIEW")
	for _, m := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			RelativeTime(now, m.Timestamp), TypeLabel(m.Type), m.DeviceName, Confidence(m.Confidence), Preview(m.DataPreview))
	}
	return tw.Flush()
}

// Groups writes the per-device feed summary.
func Groups(w io.Writer, gs []DeviceGroup, now time.Time) error {
	if len(gs) == 0 {
		_, err := fmt.Fprintln(w, "No messages.")
		return err
	}
	tw := table(w)
	fmt.Fprintln(tw, "DEVICE\tMESSAGES\tALERTS\tLEVEL\tLAST")
	for _, g := range gs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			g.DeviceName, len(g.Messages), g.Alerts, LevelLabel(g.Level()), RelativeTime(now, g.Latest().Timestamp))
	}
	return tw.Flush()
}

// Stats writes the dashboard counters.
func Stats(w io.Writer, s model.Stats) error {
	tw := table(w)
	fmt.Fprintf(tw, "Active devices\t%d\n", s.ActiveDevices)
	fmt.Fprintf(tw, "Alerts (2h)\t%d\t%s\n", s.AlertsLast2h, LevelLabel(s.AlertLevel()))
	return tw.Flush()
}

// Certificate writes generation metadata.
func Certificate(w io.Writer, c model.CertificateInfo) error {
	tw := table(w)
	fmt.Fprintf(tw, "Serial\t%s\n", c.Serial)
	fmt.Fprintf(tw, "Expires\t%s\n", optTime(&c.ExpiresAt))
	fmt.Fprintf(tw, "Download until\t%s\n", optTime(c.DownloadExpiresAt))
	return tw.Flush()
}

// User writes the session identity.
func User(w io.Writer, u model.User) error {
	tw := table(w)
	fmt.Fprintf(tw, "Username\t%s\n", u.Username)
	if u.Email != "" {
		fmt.Fprintf(tw, "Email\t%s\n", u.Email)
	}
	fmt.Fprintf(tw, "Participant\t%t\n", u.IsParticipant())
	if u.IsAdmin() {
		fmt.Fprintf(tw, "Admin\ttrue\n")
	}
	return tw.Flush()
}
