package host

//go:generate go tool compile -p host -o host.o host.go

type MsgInfo struct {
	Body string
}

type Storage struct {
	rows []string
}

func (s *Storage) Insert(m *MsgInfo, peer string, seq int64, flag bool) int64 {
	s.rows = append(s.rows, peer+":"+m.Body)
	return int64(len(s.rows))
}

func NewStorage() *Storage {
	return new(Storage)
}
