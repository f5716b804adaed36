// Package ledger persists the ports handed to each project, one JSON file
// per project, so that a later run can offer the same ports again.
//
// A record looks like this:
//
//	{
//	  "ProjectName": "demo",
//	  "CreatedDate": "2026-03-01 09:30:00",
//	  "LastUsed": "2026-03-02 18:05:07",
//	  "Ports": {"WordPress": 8081, "MySQL": 3306, "PHPMyAdmin": 8082}
//	}
//
// Records are plain files that operators may edit; comments and trailing
// commas are tolerated on read. There is no locking between processes.
package ledger
