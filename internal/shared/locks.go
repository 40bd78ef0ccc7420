package shared

// EODLockKey is the redis key guarding a day-end run across processes.
const EODLockKey = "moneymarket:eod:lock"
