package host

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"veil/config"
	"veil/internal/logs"
	"veil/internal/models"
)

// Runner абстрагирует запуск процесса (локального или ssh),
// чтобы контракты адаптера тестировались без субпроцессов.
type Runner interface {
	Run(ctx context.Context, argv []string) (stdout string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, argv []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	return strings.TrimSpace(string(out)), err
}

// Controller применяет/снимает пиров и генерирует ключи на WireGuard-хосте.
// Все операции best-effort: БД остаётся источником истины вне зависимости
// от результата; наружу ошибки не выходят.
type Controller struct {
	enabled      bool
	sshHost      string // пусто — скрипты запускаются локально
	iface        string
	applyScript  string
	removeScript string
	genScript    string
	runner       Runner
}

func New(cfg *config.Config) *Controller {
	return NewWithRunner(cfg, execRunner{})
}

func NewWithRunner(cfg *config.Config, r Runner) *Controller {
	return &Controller{
		enabled:      cfg.WG.ApplyEnabled,
		sshHost:      cfg.WG.SSHHost,
		iface:        cfg.WG.Interface,
		applyScript:  cfg.WG.ApplyScript,
		removeScript: cfg.WG.RemoveScript,
		genScript:    cfg.WG.GenScript,
		runner:       r,
	}
}

// ApplyPeer — добавить пира на живой интерфейс. true — скрипт отработал
// с нулевым кодом; false — выключено/ошибка (залогировано, не брошено).
func (c *Controller) ApplyPeer(ctx context.Context, peer *models.VpnPeer) bool {
	if !c.enabled {
		logs.Logger.Debug("wg apply disabled by config; skipping host apply")
		return false
	}
	argv := c.command(c.applyScript, []string{c.iface, peer.WGPublicKey, peer.AllowedIPs})
	logs.Logger.Infof("applying wireguard peer on host: %v", argv)
	if _, err := c.runner.Run(ctx, argv); err != nil {
		logs.Logger.Errorf("failed to apply wireguard peer on host: %v", err)
		return false
	}
	return true
}

// RemovePeer — снять пира с интерфейса. Тот же контракт, что у ApplyPeer.
func (c *Controller) RemovePeer(ctx context.Context, peer *models.VpnPeer) bool {
	if !c.enabled {
		logs.Logger.Debug("wg remove disabled by config; skipping host remove")
		return false
	}
	argv := c.command(c.removeScript, []string{c.iface, peer.WGPublicKey})
	logs.Logger.Infof("removing wireguard peer on host: %v", argv)
	if _, err := c.runner.Run(ctx, argv); err != nil {
		logs.Logger.Errorf("failed to remove wireguard peer on host: %v", err)
		return false
	}
	return true
}

// HostKey — результат генерации ключа на хосте: приватный ключ остаётся
// файлом на хосте, наружу уходит только путь и публичная половина.
type HostKey struct {
	PrivatePath string
	PublicKey   string
}

// GenerateKey запускает скрипт генерации и разбирает stdout вида KEY=value.
// nil — при ненулевом коде, неполном выводе или любой ошибке.
func (c *Controller) GenerateKey(ctx context.Context, baseName, outDir string) *HostKey {
	if !c.enabled {
		logs.Logger.Debug("wg key generation disabled by config; skipping host gen")
		return nil
	}
	argv := c.command(c.genScript, []string{outDir, baseName})
	logs.Logger.Infof("generating wireguard keys on host: %v", argv)
	out, err := c.runner.Run(ctx, argv)
	if err != nil {
		logs.Logger.Errorf("host key generation failed: %v", err)
		return nil
	}
	kv := parseKeyOutput(out)
	priv, okP := kv["private"]
	pub, okB := kv["public"]
	if !okP || !okB {
		logs.Logger.Errorf("unexpected keygen output: %q", out)
		return nil
	}
	return &HostKey{PrivatePath: priv, PublicKey: pub}
}

// command строит argv: локальный запуск скрипта либо обёртка в ssh.
// Для ssh каждый аргумент экранируется под повторный разбор удалённым шеллом.
func (c *Controller) command(script string, args []string) []string {
	if c.sshHost == "" {
		return append([]string{script}, args...)
	}
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	remote := fmt.Sprintf("sudo %s %s", shellQuote(script), strings.Join(quoted, " "))
	return []string{"ssh", c.sshHost, remote}
}

// shellQuote — POSIX-квотирование одинарными кавычками.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func parseKeyOutput(out string) map[string]string {
	kv := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kv[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return kv
}
