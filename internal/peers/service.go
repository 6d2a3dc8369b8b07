package peers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"veil/config"
	"veil/internal/auth"
	"veil/internal/logs"
	"veil/internal/models"
	"veil/internal/repo"
	"veil/internal/wg/host"
	"veil/internal/wg/keys"
	"veil/internal/wg/quick"
	"veil/internal/wgeasy"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/* ───── Контракты коллабораторов ───── */

type PeerStore interface {
	Create(ctx context.Context, p *models.VpnPeer) error
	GetByID(ctx context.Context, id uint) (*models.VpnPeer, error)
	List(ctx context.Context, userID uint, offset, limit int) ([]models.VpnPeer, error)
	LatestActiveForUser(ctx context.Context, userID uint) (*models.VpnPeer, error)
	UpdateKeys(ctx context.Context, id uint, publicKey, ip, allowedIPs string) (*models.VpnPeer, error)
	AttachConfig(ctx context.Context, id uint, encrypted string) error
	Delete(ctx context.Context, id uint) error
}

// Authorizer — предикат подписки (auth-сервис).
type Authorizer interface {
	HasActiveSubscription(ctx context.Context, userID uint) (bool, error)
}

// HostController — best-effort операции на WireGuard-хосте.
type HostController interface {
	ApplyPeer(ctx context.Context, peer *models.VpnPeer) bool
	RemovePeer(ctx context.Context, peer *models.VpnPeer) bool
	GenerateKey(ctx context.Context, baseName, outDir string) *host.HostKey
}

// ControlPlane — открытая сессия внешнего control-plane (wg-easy).
type ControlPlane interface {
	CreateClient(ctx context.Context, name string) (wgeasy.Client, error)
	DeleteClient(ctx context.Context, id string) error
	ClientConfig(ctx context.Context, id string) ([]byte, error)
	Close(ctx context.Context)
}

// ControlPlaneFactory захватывает сессию на время одной операции.
type ControlPlaneFactory func(ctx context.Context) (ControlPlane, error)

// Encryptor — секрет-бокс для конфигов на диске.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, bool)
}

/* ───── Сервис ───── */

// Service — оркестратор провижининга пиров:
// Authorizing → PolicySelected → KeyMaterialObtained → Persisted →
// HostApplied (best-effort) → ConfigAttached (best-effort) → Done.
type Service struct {
	store PeerStore
	authz Authorizer
	host  HostController
	cp    ControlPlaneFactory
	box   Encryptor // nil — ключ шифрования не настроен
	cfg   *config.Config
}

func NewService(store PeerStore, authz Authorizer, hc HostController, cp ControlPlaneFactory, box Encryptor, cfg *config.Config) *Service {
	return &Service{store: store, authz: authz, host: hc, cp: cp, box: box, cfg: cfg}
}

type CreateInput struct {
	UserID     uint // 0 — сам вызывающий
	PublicKey  string
	Address    string
	AllowedIPs string
	DeviceName string
}

// keyMaterial — единый результат ветки выбора политики.
// Внешний client id и метаданные присутствуют только у wg-easy.
type keyMaterial struct {
	privateKey       string
	publicKey        string
	externalClientID string
	metadata         map[string]string
	rawConfig        []byte // полный конфиг от control-plane, если получен
}

// Create проводит полную операцию создания пира.
// selfService дополнительно требует активную подписку целевого пользователя.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput, selfService bool) (*models.VpnPeer, error) {
	// 1) Authorizing
	target := in.UserID
	if target == 0 {
		target = p.UserID
	}
	if !p.Admin && target != p.UserID {
		return nil, ErrNotAllowed
	}
	if selfService {
		ok, err := s.authz.HasActiveSubscription(ctx, target)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrSubscriptionRequired
		}
	}
	if in.PublicKey != "" && !keys.ValidKey(in.PublicKey) {
		return nil, &ValidationError{Msg: "wg_public_key is not a valid WireGuard key"}
	}

	// 2–3) PolicySelected → KeyMaterialObtained
	km, err := s.obtainKeyMaterial(ctx, target, in)
	if err != nil {
		return nil, err
	}

	// Адрес/AllowedIPs: значение вызывающего > метаданные контроллера > аллокация.
	address := in.Address
	if address == "" {
		address = km.metadata["address"]
	}
	if address == "" {
		address = allocAddress(s.cfg.WG.Subnet, target)
	}
	allowed := in.AllowedIPs
	if allowed == "" {
		allowed = km.metadata["allowed_ips"]
	}

	if km.privateKey == "" {
		// Сюда попадать нельзя: ряд без ключевого материала не персистится.
		return nil, fmt.Errorf("key policy %q yielded empty private key", s.cfg.WG.KeyPolicy)
	}

	// 4) Persisted (+ компенсация внешнего клиента при провале коммита)
	peer := &models.VpnPeer{
		UserID:       target,
		WGPrivateKey: km.privateKey,
		WGPublicKey:  km.publicKey,
		WGClientID:   km.externalClientID,
		WGIP:         address,
		AllowedIPs:   allowed,
		Active:       true,
	}
	if len(km.metadata) > 0 {
		meta := datatypes.JSONMap{}
		for k, v := range km.metadata {
			meta[k] = v
		}
		peer.Metadata = meta
	}
	if err := s.store.Create(ctx, peer); err != nil {
		if km.externalClientID != "" {
			s.compensateRemoteClient(ctx, km.externalClientID)
		}
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}

	// 5) HostApplied — best-effort, ошибок наружу нет
	s.host.ApplyPeer(ctx, peer)

	// 6) ConfigAttached — best-effort
	s.attachConfig(ctx, peer, km)

	// 7) Done: возвращаем ряд вместе с приватным ключом (единственный раз)
	return peer, nil
}

func (s *Service) obtainKeyMaterial(ctx context.Context, target uint, in CreateInput) (keyMaterial, error) {
	switch s.cfg.WG.KeyPolicy {
	case "host":
		if km, ok := s.keyMaterialHost(ctx, target); ok {
			return km, nil
		}
		// хост не дал ключей — локальная генерация как при db
		return s.keyMaterialDB(in), nil
	case "wg-easy":
		return s.keyMaterialWGEasy(ctx, target, in)
	default: // db
		return s.keyMaterialDB(in), nil
	}
}

// db: полная локальная пара; при клиентском публичном ключе — только
// свежий приватный.
func (s *Service) keyMaterialDB(in CreateInput) keyMaterial {
	if in.PublicKey != "" {
		return keyMaterial{privateKey: keys.GeneratePrivate(), publicKey: in.PublicKey}
	}
	kp := keys.Generate()
	return keyMaterial{privateKey: kp.PrivateKey, publicKey: kp.PublicKey}
}

// host: пара генерируется скриптом на хосте; приватный ключ остаётся там,
// у нас — маркер с путём.
func (s *Service) keyMaterialHost(ctx context.Context, target uint) (keyMaterial, bool) {
	base := fmt.Sprintf("user%d-%s", target, randSuffix())
	hk := s.host.GenerateKey(ctx, base, s.cfg.WG.KeysDir)
	if hk == nil {
		return keyMaterial{}, false
	}
	return keyMaterial{
		privateKey: "host:" + hk.PrivatePath,
		publicKey:  hk.PublicKey,
	}, true
}

// wg-easy: клиент создаётся в control-plane; ошибка создания фатальна,
// недоступность конфига — нет (ставим маркер вместо приватного ключа).
func (s *Service) keyMaterialWGEasy(ctx context.Context, target uint, in CreateInput) (keyMaterial, error) {
	cp, err := s.cp(ctx)
	if err != nil {
		return keyMaterial{}, err
	}
	defer cp.Close(ctx)

	name := in.DeviceName
	if name == "" {
		name = fmt.Sprintf("peer-%d-%s", target, randSuffix())
	}
	client, err := cp.CreateClient(ctx, name)
	if err != nil {
		var up *wgeasy.UpstreamError
		if errors.As(err, &up) {
			return keyMaterial{}, err
		}
		return keyMaterial{}, &wgeasy.UpstreamError{Err: err}
	}

	km := keyMaterial{
		privateKey:       "wg-easy-managed",
		publicKey:        client.PublicKey,
		externalClientID: client.ID,
	}
	if km.publicKey == "" {
		km.publicKey = in.PublicKey
	}

	raw, err := cp.ClientConfig(ctx, client.ID)
	if err != nil {
		logs.Logger.Warnf("wg-easy client config fetch failed (continuing with marker key): %v", err)
		return km, nil
	}
	km.rawConfig = raw
	fields := quick.Parse(string(raw))
	if fields.PrivateKey != "" {
		km.privateKey = fields.PrivateKey
	}
	km.metadata = map[string]string{}
	if fields.Address != "" {
		km.metadata["address"] = fields.Address
	}
	if fields.AllowedIPs != "" {
		km.metadata["allowed_ips"] = fields.AllowedIPs
	}
	if fields.DNS != "" {
		km.metadata["dns"] = fields.DNS
	}
	if fields.Endpoint != "" {
		km.metadata["endpoint"] = fields.Endpoint
	}
	return km, nil
}

// compensateRemoteClient — сага-откат: локальный коммит не прошёл,
// удаляем уже созданного внешнего клиента. Сам откат тоже best-effort.
func (s *Service) compensateRemoteClient(ctx context.Context, clientID string) {
	cp, err := s.cp(ctx)
	if err != nil {
		logs.Logger.Errorf("compensation: control-plane unavailable, orphan client %s: %v", clientID, err)
		return
	}
	defer cp.Close(ctx)
	if err := cp.DeleteClient(ctx, clientID); err != nil {
		logs.Logger.Errorf("compensation: failed to delete wg-easy client %s: %v", clientID, err)
	}
}

// attachConfig — отдельный коммит: строим wg-quick текст (сырой от
// control-plane либо синтез), шифруем и записываем. Любой провал
// логируется и не портит основной ответ.
func (s *Service) attachConfig(ctx context.Context, peer *models.VpnPeer, km keyMaterial) {
	if s.box == nil {
		logs.Logger.Warn("config encryption key not configured; peer config not stored")
		return
	}
	text := string(km.rawConfig)
	if text == "" {
		allowed := peer.AllowedIPs
		if allowed == "" {
			allowed = "0.0.0.0/0, ::/0"
		}
		text = quick.Build(peer.WGPrivateKey, peer.WGIP, allowed,
			s.cfg.WG.ServerPublicKey, s.cfg.WG.Endpoint, s.cfg.WG.DNS)
	}
	token, err := s.box.Encrypt(text)
	if err != nil {
		logs.Logger.Errorf("peer %d: config encryption failed: %v", peer.ID, err)
		return
	}
	if err := s.store.AttachConfig(ctx, peer.ID, token); err != nil {
		logs.Logger.Errorf("peer %d: config attach failed: %v", peer.ID, err)
		return
	}
	peer.EncryptedConfig = token
}

/* ───── Чтение / обновление / удаление ───── */

func (s *Service) Get(ctx context.Context, p auth.Principal, id uint) (*models.VpnPeer, error) {
	peer, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !p.Admin && peer.UserID != p.UserID {
		return nil, ErrNotAllowed
	}
	return peer, nil
}

func (s *Service) List(ctx context.Context, p auth.Principal, userID uint, skip, limit int) ([]models.VpnPeer, error) {
	if userID != 0 {
		if !p.Admin && userID != p.UserID {
			return nil, ErrNotAllowed
		}
	} else if !p.Admin {
		userID = p.UserID
	}
	return s.store.List(ctx, userID, skip, limit)
}

type UpdateInput struct {
	PublicKey  string
	Address    string
	AllowedIPs string
}

// Update меняет только public key / адрес / allowed_ips, без перегенерации.
func (s *Service) Update(ctx context.Context, p auth.Principal, id uint, in UpdateInput) (*models.VpnPeer, error) {
	peer, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PublicKey) == "" || strings.TrimSpace(in.Address) == "" {
		return nil, &ValidationError{Msg: "wg_public_key and wg_ip are required"}
	}
	if !keys.ValidKey(in.PublicKey) {
		return nil, &ValidationError{Msg: "wg_public_key is not a valid WireGuard key"}
	}
	updated, err := s.store.UpdateKeys(ctx, peer.ID, in.PublicKey, in.Address, in.AllowedIPs)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return updated, nil
}

// Delete удаляет ряд; после коммита — best-effort снятие с хоста и,
// при наличии внешнего client id, удаление в control-plane.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uint) error {
	peer, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, peer.ID); err != nil {
		return err
	}

	s.host.RemovePeer(ctx, peer)
	if peer.WGClientID != "" {
		s.compensateRemoteClient(ctx, peer.WGClientID)
	}
	return nil
}

// SelfConfig — выдача wg-quick текста владельцу. Подписка проверяется
// до любого обращения к хранилищу пиров.
func (s *Service) SelfConfig(ctx context.Context, p auth.Principal) (string, error) {
	ok, err := s.authz.HasActiveSubscription(ctx, p.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrSubscriptionRequired
	}
	peer, err := s.store.LatestActiveForUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if peer.EncryptedConfig == "" {
		return "", ErrNotFound
	}
	if s.box == nil {
		return "", ErrDecrypt
	}
	text, ok := s.box.Decrypt(peer.EncryptedConfig)
	if !ok {
		return "", ErrDecrypt
	}
	return text, nil
}

func randSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
