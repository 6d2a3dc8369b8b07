package peers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"veil/config"
	"veil/internal/auth"
	"veil/internal/models"
	"veil/internal/repo"
	"veil/internal/secretbox"
	"veil/internal/wg/host"
	"veil/internal/wg/keys"
	"veil/internal/wg/quick"
	"veil/internal/wgeasy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───── Фейки коллабораторов ───── */

type fakeStore struct {
	peers     map[uint]*models.VpnPeer
	nextID    uint
	createErr error
	attached  map[uint]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{peers: map[uint]*models.VpnPeer{}, nextID: 1, attached: map[uint]string{}}
}

func (f *fakeStore) Create(_ context.Context, p *models.VpnPeer) error {
	if f.createErr != nil {
		return f.createErr
	}
	p.ID = f.nextID
	f.nextID++
	cp := *p
	f.peers[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uint) (*models.VpnPeer, error) {
	p, ok := f.peers[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) List(_ context.Context, userID uint, _, _ int) ([]models.VpnPeer, error) {
	var out []models.VpnPeer
	for _, p := range f.peers {
		if userID == 0 || p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) LatestActiveForUser(_ context.Context, userID uint) (*models.VpnPeer, error) {
	var latest *models.VpnPeer
	for _, p := range f.peers {
		if p.UserID == userID && p.Active && (latest == nil || p.ID > latest.ID) {
			latest = p
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStore) UpdateKeys(_ context.Context, id uint, publicKey, ip, allowedIPs string) (*models.VpnPeer, error) {
	p, ok := f.peers[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	p.WGPublicKey, p.WGIP, p.AllowedIPs = publicKey, ip, allowedIPs
	cp := *p
	return &cp, nil
}

func (f *fakeStore) AttachConfig(_ context.Context, id uint, encrypted string) error {
	if p, ok := f.peers[id]; ok {
		p.EncryptedConfig = encrypted
	}
	f.attached[id] = encrypted
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uint) error {
	if _, ok := f.peers[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.peers, id)
	return nil
}

type fakeAuthz struct {
	subscribed bool
	err        error
	calls      int
}

func (f *fakeAuthz) HasActiveSubscription(context.Context, uint) (bool, error) {
	f.calls++
	return f.subscribed, f.err
}

type fakeHost struct {
	applied []string
	removed []string
	key     *host.HostKey
}

func (f *fakeHost) ApplyPeer(_ context.Context, p *models.VpnPeer) bool {
	f.applied = append(f.applied, p.WGPublicKey)
	return true
}

func (f *fakeHost) RemovePeer(_ context.Context, p *models.VpnPeer) bool {
	f.removed = append(f.removed, p.WGPublicKey)
	return true
}

func (f *fakeHost) GenerateKey(context.Context, string, string) *host.HostKey { return f.key }

type fakeControlPlane struct {
	client    wgeasy.Client
	createErr error
	cfg       []byte
	cfgErr    error

	created   []string
	deleted   []string
	closed    int
	deleteErr error
}

func (f *fakeControlPlane) CreateClient(_ context.Context, name string) (wgeasy.Client, error) {
	f.created = append(f.created, name)
	return f.client, f.createErr
}

func (f *fakeControlPlane) DeleteClient(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeControlPlane) ClientConfig(context.Context, string) ([]byte, error) {
	return f.cfg, f.cfgErr
}

func (f *fakeControlPlane) Close(context.Context) { f.closed++ }

func factoryOf(cp *fakeControlPlane) ControlPlaneFactory {
	return func(context.Context) (ControlPlane, error) { return cp, nil }
}

/* ───── Сборка сервиса ───── */

func testBox(t *testing.T) *secretbox.Box {
	t.Helper()
	box, err := secretbox.New(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	return box
}

func serviceConfig(policy string) *config.Config {
	cfg := &config.Config{}
	cfg.WG.KeyPolicy = policy
	cfg.WG.Subnet = "10.8.0.0/24"
	cfg.WG.ServerPublicKey = "SRVPUB"
	cfg.WG.Endpoint = "vpn.example.com:51820"
	cfg.WG.DNS = "1.1.1.1"
	cfg.WG.KeysDir = "/etc/wg-keys"
	return cfg
}

type fixture struct {
	svc   *Service
	store *fakeStore
	authz *fakeAuthz
	host  *fakeHost
	cp    *fakeControlPlane
}

func newFixture(t *testing.T, policy string) *fixture {
	f := &fixture{
		store: newFakeStore(),
		authz: &fakeAuthz{subscribed: true},
		host:  &fakeHost{},
		cp:    &fakeControlPlane{},
	}
	f.svc = NewService(f.store, f.authz, f.host, factoryOf(f.cp), testBox(t), serviceConfig(policy))
	return f
}

var (
	admin = auth.Principal{UserID: 1, Admin: true}
	alice = auth.Principal{UserID: 7}
	bob   = auth.Principal{UserID: 8}
)

/* ───── Create ───── */

func TestCreateDBPolicy(t *testing.T) {
	f := newFixture(t, "db")

	peer, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	require.NoError(t, err)

	assert.Equal(t, alice.UserID, peer.UserID)
	assert.True(t, keys.ValidKey(peer.WGPrivateKey))
	assert.True(t, keys.ValidKey(peer.WGPublicKey))
	// детерминированный адрес из подсети
	assert.Equal(t, allocAddress("10.8.0.0/24", alice.UserID), peer.WGIP)
	assert.True(t, peer.Active)

	// best-effort шаги отработали
	assert.Equal(t, []string{peer.WGPublicKey}, f.host.applied)
	require.NotEmpty(t, peer.EncryptedConfig)

	// зашифрованный конфиг расшифровывается и содержит приватный ключ
	text, ok := testBox(t).Decrypt(peer.EncryptedConfig)
	require.True(t, ok)
	fields := quick.Parse(text)
	assert.Equal(t, peer.WGPrivateKey, fields.PrivateKey)
	assert.Equal(t, peer.WGIP, fields.Address)
	assert.Equal(t, "0.0.0.0/0, ::/0", fields.AllowedIPs)
}

func TestCreateSuppliedPublicKey(t *testing.T) {
	f := newFixture(t, "db")
	pub := keys.Generate().PublicKey

	peer, err := f.svc.Create(context.Background(), alice, CreateInput{PublicKey: pub}, false)
	require.NoError(t, err)
	assert.Equal(t, pub, peer.WGPublicKey)
	assert.True(t, keys.ValidKey(peer.WGPrivateKey))
	assert.NotEqual(t, pub, peer.WGPrivateKey)
}

func TestCreateInvalidPublicKey(t *testing.T) {
	f := newFixture(t, "db")
	_, err := f.svc.Create(context.Background(), alice, CreateInput{PublicKey: "junk"}, false)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCreateForeignUserForbidden(t *testing.T) {
	f := newFixture(t, "db")
	_, err := f.svc.Create(context.Background(), alice, CreateInput{UserID: bob.UserID}, false)
	assert.ErrorIs(t, err, ErrNotAllowed)

	// админу можно
	peer, err := f.svc.Create(context.Background(), admin, CreateInput{UserID: bob.UserID}, false)
	require.NoError(t, err)
	assert.Equal(t, bob.UserID, peer.UserID)
}

func TestCreateSelfServiceSubscriptionGate(t *testing.T) {
	f := newFixture(t, "db")
	f.authz.subscribed = false

	_, err := f.svc.Create(context.Background(), alice, CreateInput{}, true)
	assert.ErrorIs(t, err, ErrSubscriptionRequired)
	assert.Empty(t, f.store.peers)

	f.authz.subscribed = true
	_, err = f.svc.Create(context.Background(), alice, CreateInput{}, true)
	assert.NoError(t, err)
}

func TestCreateHostPolicy(t *testing.T) {
	f := newFixture(t, "host")
	pub := keys.Generate().PublicKey
	f.host.key = &host.HostKey{PrivatePath: "/etc/wg-keys/u7.key", PublicKey: pub}

	peer, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	require.NoError(t, err)
	assert.Equal(t, "host:/etc/wg-keys/u7.key", peer.WGPrivateKey)
	assert.Equal(t, pub, peer.WGPublicKey)
}

func TestCreateHostPolicyFallsBackToDB(t *testing.T) {
	f := newFixture(t, "host")
	f.host.key = nil // хост ключей не дал

	peer, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	require.NoError(t, err)
	assert.True(t, keys.ValidKey(peer.WGPrivateKey))
}

func TestCreateWGEasyPolicy(t *testing.T) {
	f := newFixture(t, "wg-easy")
	f.cp.client = wgeasy.Client{ID: "c-42", PublicKey: "REMOTEPUB"}
	f.cp.cfg = []byte("[Interface]\nPrivateKey = remotepriv\nAddress = 10.9.0.3/32\nDNS = 9.9.9.9\n[Peer]\nAllowedIPs = 0.0.0.0/0\nEndpoint = wg.example:51820\n")

	peer, err := f.svc.Create(context.Background(), alice, CreateInput{DeviceName: "laptop"}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"laptop"}, f.cp.created)
	assert.Equal(t, "c-42", peer.WGClientID)
	assert.Equal(t, "remotepriv", peer.WGPrivateKey)
	assert.Equal(t, "REMOTEPUB", peer.WGPublicKey)
	// адрес и allowed_ips взяты из конфига контроллера
	assert.Equal(t, "10.9.0.3/32", peer.WGIP)
	assert.Equal(t, "0.0.0.0/0", peer.AllowedIPs)
	assert.Equal(t, "9.9.9.9", peer.Metadata["dns"])
	// сессия закрыта ровно один раз
	assert.Equal(t, 1, f.cp.closed)

	// сырой конфиг контроллера сохранён как есть
	text, ok := testBox(t).Decrypt(peer.EncryptedConfig)
	require.True(t, ok)
	assert.Equal(t, string(f.cp.cfg), text)
}

func TestCreateWGEasyConfigUnavailable(t *testing.T) {
	f := newFixture(t, "wg-easy")
	f.cp.client = wgeasy.Client{ID: "c-1", PublicKey: "PUB"}
	f.cp.cfgErr = errors.New("config endpoint down")

	peer, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	require.NoError(t, err)
	// маркер вместо приватного ключа, ряд всё равно персистится
	assert.Equal(t, "wg-easy-managed", peer.WGPrivateKey)
	assert.NotEmpty(t, peer.WGIP)
}

func TestCreateWGEasyCreateFails(t *testing.T) {
	f := newFixture(t, "wg-easy")
	f.cp.createErr = errors.New("boom")

	_, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	var up *wgeasy.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Empty(t, f.store.peers)
	assert.Empty(t, f.host.applied)
}

func TestCreateCompensatesRemoteClientOnPersistFailure(t *testing.T) {
	f := newFixture(t, "wg-easy")
	f.cp.client = wgeasy.Client{ID: "c-13", PublicKey: "PUB"}
	f.store.createErr = repo.ErrDuplicate

	_, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	assert.ErrorIs(t, err, ErrConflict)
	// сага-откат: созданный внешний клиент удалён
	assert.Equal(t, []string{"c-13"}, f.cp.deleted)
}

func TestCreateDuplicateWithoutRemoteClient(t *testing.T) {
	f := newFixture(t, "db")
	f.store.createErr = repo.ErrDuplicate

	_, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, f.cp.deleted)
}

func TestCreateCallerAddressWins(t *testing.T) {
	f := newFixture(t, "db")
	peer, err := f.svc.Create(context.Background(), alice, CreateInput{Address: "10.8.0.99/32", AllowedIPs: "10.8.0.0/24"}, false)
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.99/32", peer.WGIP)
	assert.Equal(t, "10.8.0.0/24", peer.AllowedIPs)
}

func TestCreateWithoutEncryptionKey(t *testing.T) {
	f := newFixture(t, "db")
	f.svc.box = nil

	peer, err := f.svc.Create(context.Background(), alice, CreateInput{}, false)
	require.NoError(t, err)
	assert.Empty(t, peer.EncryptedConfig)
}

/* ───── Get / List / Update / Delete ───── */

func seedPeer(t *testing.T, f *fixture, p auth.Principal) *models.VpnPeer {
	t.Helper()
	peer, err := f.svc.Create(context.Background(), p, CreateInput{}, false)
	require.NoError(t, err)
	return peer
}

func TestGetScoping(t *testing.T) {
	f := newFixture(t, "db")
	peer := seedPeer(t, f, alice)

	got, err := f.svc.Get(context.Background(), alice, peer.ID)
	require.NoError(t, err)
	assert.Equal(t, peer.ID, got.ID)

	_, err = f.svc.Get(context.Background(), bob, peer.ID)
	assert.ErrorIs(t, err, ErrNotAllowed)

	_, err = f.svc.Get(context.Background(), admin, peer.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), admin, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListScoping(t *testing.T) {
	f := newFixture(t, "db")
	seedPeer(t, f, alice)
	seedPeer(t, f, bob)

	// не-админ без фильтра видит только своё
	list, err := f.svc.List(context.Background(), alice, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alice.UserID, list[0].UserID)

	// чужой фильтр запрещён
	_, err = f.svc.List(context.Background(), alice, bob.UserID, 0, 0)
	assert.ErrorIs(t, err, ErrNotAllowed)

	// админ без фильтра видит всех
	list, err = f.svc.List(context.Background(), admin, 0, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, "db")
	peer := seedPeer(t, f, alice)
	newPub := keys.Generate().PublicKey

	updated, err := f.svc.Update(context.Background(), alice, peer.ID, UpdateInput{
		PublicKey: newPub, Address: "10.8.0.50/32", AllowedIPs: "10.8.0.0/24",
	})
	require.NoError(t, err)
	assert.Equal(t, newPub, updated.WGPublicKey)
	assert.Equal(t, "10.8.0.50/32", updated.WGIP)

	// обязательные поля
	_, err = f.svc.Update(context.Background(), alice, peer.ID, UpdateInput{PublicKey: newPub})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.Update(context.Background(), alice, peer.ID, UpdateInput{PublicKey: "junk", Address: "10.8.0.1/32"})
	assert.ErrorAs(t, err, &ve)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, "wg-easy")
	f.cp.client = wgeasy.Client{ID: "c-5", PublicKey: "PUB"}
	peer := seedPeer(t, f, alice)
	f.cp.deleted = nil

	require.NoError(t, f.svc.Delete(context.Background(), alice, peer.ID))
	assert.Empty(t, f.store.peers)
	// снятие с хоста и ровно одно удаление в control-plane
	assert.Equal(t, []string{peer.WGPublicKey}, f.host.removed)
	assert.Equal(t, []string{"c-5"}, f.cp.deleted)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), alice, peer.ID), ErrNotFound)
}

func TestDeleteRemoteFailureIgnored(t *testing.T) {
	f := newFixture(t, "wg-easy")
	f.cp.client = wgeasy.Client{ID: "c-6", PublicKey: "PUB"}
	peer := seedPeer(t, f, alice)
	f.cp.deleted = nil
	f.cp.deleteErr = errors.New("control-plane down")

	// ошибка удалённого удаления не портит локальное
	require.NoError(t, f.svc.Delete(context.Background(), alice, peer.ID))
	assert.Equal(t, []string{"c-6"}, f.cp.deleted)
}

func TestDeleteWithoutRemoteClient(t *testing.T) {
	f := newFixture(t, "db")
	peer := seedPeer(t, f, alice)

	require.NoError(t, f.svc.Delete(context.Background(), alice, peer.ID))
	assert.Empty(t, f.cp.deleted)
}

func TestDeleteForeignForbidden(t *testing.T) {
	f := newFixture(t, "db")
	peer := seedPeer(t, f, alice)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), bob, peer.ID), ErrNotAllowed)
	assert.Len(t, f.store.peers, 1)
}

/* ───── SelfConfig ───── */

func TestSelfConfig(t *testing.T) {
	f := newFixture(t, "db")
	peer := seedPeer(t, f, alice)

	text, err := f.svc.SelfConfig(context.Background(), alice)
	require.NoError(t, err)
	fields := quick.Parse(text)
	assert.Equal(t, peer.WGPrivateKey, fields.PrivateKey)
}

func TestSelfConfigSubscriptionCheckedFirst(t *testing.T) {
	f := newFixture(t, "db")
	seedPeer(t, f, alice)
	f.authz.subscribed = false
	f.authz.calls = 0

	_, err := f.svc.SelfConfig(context.Background(), alice)
	assert.ErrorIs(t, err, ErrSubscriptionRequired)
	assert.Equal(t, 1, f.authz.calls)
}

func TestSelfConfigNoPeer(t *testing.T) {
	f := newFixture(t, "db")
	_, err := f.svc.SelfConfig(context.Background(), alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelfConfigNoStoredConfig(t *testing.T) {
	f := newFixture(t, "db")
	f.svc.box = nil // конфиг не сохранится
	seedPeer(t, f, alice)
	f.svc.box = testBox(t)

	_, err := f.svc.SelfConfig(context.Background(), alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelfConfigDecryptFailure(t *testing.T) {
	f := newFixture(t, "db")
	peer := seedPeer(t, f, alice)

	// токен от чужого ключа не расшифруется
	other, err := secretbox.New(base64.StdEncoding.EncodeToString([]byte("00000000000000000000000000000001")))
	require.NoError(t, err)
	token, err := other.Encrypt("text")
	require.NoError(t, err)
	f.store.peers[peer.ID].EncryptedConfig = token

	_, err = f.svc.SelfConfig(context.Background(), alice)
	assert.ErrorIs(t, err, ErrDecrypt)
}

/* ───── Аллокация адресов ───── */

func TestAllocAddress(t *testing.T) {
	a := allocAddress("10.8.0.0/24", 7)
	assert.Equal(t, a, allocAddress("10.8.0.0/24", 7)) // детерминизм
	assert.Regexp(t, `^10\.8\.0\.\d+/32$`, a)

	var octet int
	_, err := fmt.Sscanf(a, "10.8.0.%d/32", &octet)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, octet, 10)
	assert.LessOrEqual(t, octet, 254)
}

func TestAllocAddressBadSubnetFallsBack(t *testing.T) {
	assert.Regexp(t, `^10\.8\.0\.\d+/32$`, allocAddress("not-a-cidr", 7))
	assert.Regexp(t, `^10\.8\.0\.\d+/32$`, allocAddress("fd00::/64", 7))
}

func TestAllocAddressCustomSubnet(t *testing.T) {
	assert.Regexp(t, `^192\.168\.44\.\d+/32$`, allocAddress("192.168.44.0/24", 123))
}
