package service

import (
	"strconv"
	"sync"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/config"
)

// defaultSchoolZones - часовые пояса школ, известные без настройки
var defaultSchoolZones = map[int64]string{
	1: "Asia/Shanghai",
	2: "America/New_York",
	3: "Europe/London",
	4: "Asia/Tokyo",
	5: "Australia/Sydney",
}

// TimeZoneService определяет часовой пояс школы
type TimeZoneService struct {
	defaultZone string
	zones       map[int64]string
	log         *zap.Logger

	mu        sync.RWMutex
	locations map[string]*time.Location
}

// NewTimeZoneService создает сервис. Школы из конфигурации дополняют и переопределяют встроенные.
func NewTimeZoneService(cfg config.TimeZoneConfig, log *zap.Logger) *TimeZoneService {
	if log == nil {
		log = zap.NewNop()
	}
	zones := make(map[int64]string, len(defaultSchoolZones)+len(cfg.Schools))
	for id, zone := range defaultSchoolZones {
		zones[id] = zone
	}
	for key, zone := range cfg.Schools {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || zone == "" {
			log.Warn("[TimeZone] Пропускаем некорректную запись школы", zap.String("school", key), zap.String("zone", zone))
			continue
		}
		zones[id] = zone
	}
	defaultZone := cfg.Default
	if defaultZone == "" {
		defaultZone = "UTC"
	}
	return &TimeZoneService{
		defaultZone: defaultZone,
		zones:       zones,
		log:         log,
		locations:   make(map[string]*time.Location),
	}
}

// ZoneName возвращает имя пояса школы или пояс по умолчанию
func (s *TimeZoneService) ZoneName(schoolID int64) string {
	if zone, ok := s.zones[schoolID]; ok {
		return zone
	}
	return s.defaultZone
}

// Location возвращает пояс школы. Неизвестное имя пояса даёт UTC.
func (s *TimeZoneService) Location(schoolID int64) *time.Location {
	name := s.ZoneName(schoolID)

	s.mu.RLock()
	loc, ok := s.locations[name]
	s.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		s.log.Warn("[TimeZone] Неизвестный часовой пояс, используем UTC", zap.String("zone", name), zap.Error(err))
		loc = time.UTC
	}

	s.mu.Lock()
	s.locations[name] = loc
	s.mu.Unlock()
	return loc
}

// Now возвращает текущее время в поясе школы
func (s *TimeZoneService) Now(schoolID int64) time.Time {
	return time.Now().In(s.Location(schoolID))
}
