package peers

import (
	"fmt"
	"hash/fnv"
	"net"
	"strconv"
)

// reservedLow — нижние адреса подсети (шлюз, сервер, служебные).
const reservedLow = 10

// allocAddress детерминированно выводит /32-адрес пира из id пользователя:
// FNV-1a по десятичному id, хост-октет в диапазоне [10..254] внутри /24.
// Уникальность в итоге гарантирует только unique-индекс на wg_ip —
// коллизия хэша закончится ошибкой создания.
func allocAddress(subnet string, userID uint) string {
	_, ipnet, err := net.ParseCIDR(subnet)
	if err != nil || ipnet.IP.To4() == nil {
		ipnet = &net.IPNet{IP: net.IPv4(10, 8, 0, 0).To4(), Mask: net.CIDRMask(24, 32)}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatUint(uint64(userID), 10)))
	octet := reservedLow + int(h.Sum32()%uint32(255-reservedLow))

	base := ipnet.IP.To4()
	return fmt.Sprintf("%d.%d.%d.%d/32", base[0], base[1], base[2], octet)
}
