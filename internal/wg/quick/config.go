package quick

import (
	"fmt"
	"strings"
)

// Build собирает wg-quick конфиг клиента. Формат детерминированный:
// две секции, PersistentKeepalive фиксирован.
func Build(privateKey, address, allowedIPs, serverPublicKey, endpoint, dns string) string {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", privateKey)
	fmt.Fprintf(&b, "Address = %s\n", address)
	fmt.Fprintf(&b, "DNS = %s\n", dns)
	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", serverPublicKey)
	fmt.Fprintf(&b, "Endpoint = %s\n", endpoint)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", allowedIPs)
	b.WriteString("PersistentKeepalive = 25\n")
	return b.String()
}

// Fields — нормализованный результат разбора клиентского конфига.
// Отсутствующие поля остаются пустыми строками.
type Fields struct {
	Address    string
	AllowedIPs string
	DNS        string
	Endpoint   string
	PrivateKey string

	// Все пары section.key → value (ключи в нижнем регистре)
	Raw map[string]string
}

// Parse — толерантный построчный разбор wg-quick текста.
// Пропускает пустые строки и комментарии (#), не падает на мусоре.
func Parse(text string) Fields {
	raw := map[string]string{}
	section := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if section != "" {
			key = section + "." + key
		}
		raw[key] = strings.TrimSpace(v)
	}

	pick := func(sectioned, bare string) string {
		if v, ok := raw[sectioned]; ok {
			return v
		}
		return raw[bare]
	}
	return Fields{
		Address:    pick("interface.address", "address"),
		AllowedIPs: pick("peer.allowedips", "allowedips"),
		DNS:        pick("interface.dns", "dns"),
		Endpoint:   pick("peer.endpoint", "endpoint"),
		PrivateKey: pick("interface.privatekey", "privatekey"),
		Raw:        raw,
	}
}
