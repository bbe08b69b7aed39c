package notify

import (
	"bytes"
	"fmt"
	"net/http"
	"net/smtp"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ipsix/hostsweep/internal/config"
)

// Notifier delivers the run summary once the risk score crosses the
// notify threshold. Every channel is best effort: a channel that cannot
// deliver logs a warning and the run's outcome is unaffected.
type Notifier struct {
	cfg    config.Config
	logger *zap.SugaredLogger

	client   *http.Client
	sleep    func(time.Duration)
	lookPath func(string) (string, error)
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	runPipe  func(bin string, args []string, stdin string) error
}

func New(cfg config.Config, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		sleep:    time.Sleep,
		lookPath: exec.LookPath,
		sendMail: smtp.SendMail,
		runPipe:  runPipe,
	}
}

// Dispatch delivers the summary over every configured channel. The
// caller gates on the notify threshold; Dispatch itself always sends.
func (n *Notifier) Dispatch(summaryJSON []byte, human string, score int) {
	n.email(human, score)
	n.webhook(summaryJSON)
}

func (n *Notifier) email(human string, score int) {
	if n.cfg.NotifyEmail == "" {
		return
	}
	subject := fmt.Sprintf("hostsweep: risk %d on %s", score, hostFrom(n.cfg.SMTPFrom))

	if n.cfg.SMTPServer != "" {
		msg := strings.Join([]string{
			"From: " + n.cfg.SMTPFrom,
			"To: " + n.cfg.NotifyEmail,
			"Subject: " + subject,
			"",
			human,
		}, "\r\n")
		err := n.sendMail(n.cfg.SMTPServer, nil, n.cfg.SMTPFrom, []string{n.cfg.NotifyEmail}, []byte(msg))
		if err != nil {
			n.logger.Warnw("smtp delivery failed", "server", n.cfg.SMTPServer, "error", err)
		}
		return
	}

	// No SMTP server configured: fall back to whatever local mailer
	// exists on this host.
	for _, bin := range []string{"mail", "mailx"} {
		path, err := n.lookPath(bin)
		if err != nil {
			continue
		}
		if err := n.runPipe(path, []string{"-s", subject, n.cfg.NotifyEmail}, human); err != nil {
			n.logger.Warnw("local mailer failed", "mailer", bin, "error", err)
		}
		return
	}
	if path, err := n.lookPath("sendmail"); err == nil {
		body := "Subject: " + subject + "\n\n" + human
		if err := n.runPipe(path, []string{n.cfg.NotifyEmail}, body); err != nil {
			n.logger.Warnw("sendmail failed", "error", err)
		}
		return
	}
	n.logger.Warnw("no mail facility available, email skipped", "to", n.cfg.NotifyEmail)
}

func (n *Notifier) webhook(summaryJSON []byte) {
	if n.cfg.WebhookURL == "" {
		return
	}

	delay := n.cfg.RetryBaseDelay()
	for attempt := 1; attempt <= n.cfg.RetryMaxAttempts; attempt++ {
		err := n.post(summaryJSON)
		if err == nil {
			n.logger.Infow("webhook delivered", "attempt", attempt)
			return
		}
		if attempt == n.cfg.RetryMaxAttempts {
			n.logger.Warnw("webhook retries exhausted",
				"attempts", attempt, "error", err)
			return
		}
		n.logger.Warnw("webhook delivery failed, retrying",
			"attempt", attempt, "delay", delay.String(), "error", err)
		n.sleep(delay)
		delay *= time.Duration(n.cfg.RetryBackoffFactor)
		if max := n.cfg.RetryMaxDelay(); delay > max {
			delay = max
		}
	}
}

func (n *Notifier) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func runPipe(bin string, args []string, stdin string) error {
	cmd := exec.Command(bin, args...)
	cmd.Stdin = strings.NewReader(stdin)
	return cmd.Run()
}

func hostFrom(from string) string {
	if _, host, ok := strings.Cut(from, "@"); ok {
		return host
	}
	return from
}
